package cmd

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// openDB forces parseTime and clientFoundRows so DATETIME columns scan into
// time.Time and an UPDATE that changes nothing still reports its matched row.
func openDB(ctx context.Context, cfg *config.Config) *sql.DB {
	dsn, err := mysql.ParseDSN(cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Invalid MySQL DSN")
	}
	dsn.ParseTime = true
	dsn.ClientFoundRows = true

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}
