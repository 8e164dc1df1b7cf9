package cmd

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-credentials/migrations"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

func init() {
	migrateCmd.AddCommand(
		migrationCommand("up", "Apply all pending migrations", goose.UpContext),
		migrationCommand("down", "Roll back the latest migration", goose.DownContext),
		migrationCommand("status", "Print the status of every migration", goose.StatusContext),
	)
	rootCmd.AddCommand(migrateCmd)
}

type migrationFunc func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error

func migrationCommand(use, short string, run migrationFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg := loadConfig()
			ctx := cmd.Context()

			db := openDB(ctx, cfg)
			defer db.Close()

			goose.SetBaseFS(migrations.FS)
			goose.SetLogger(logrus.StandardLogger())
			if err := goose.SetDialect("mysql"); err != nil {
				logrus.WithError(err).Fatal("Failed to select migration dialect")
			}
			if err := run(ctx, db, "."); err != nil {
				logrus.WithError(err).WithField("command", use).Fatal("Migration failed")
			}
			logrus.WithField("command", use).Info("Migration finished")
		},
	}
}
