package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/vibast-solutions/ms-go-credentials/app/mailer"
	"github.com/vibast-solutions/ms-go-credentials/app/notification"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run the email consumer",
	Long:  `Consume email requests from the Kafka topic and deliver them over SMTP until interrupted.`,
	Run:   runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, _ []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.StandardLogger()
	smtp := mailer.NewSMTPMailer(cfg.SMTP, logger)
	defer closeLogged(smtp, "SMTP session", logger)

	consumer := notification.NewConsumer(cfg.Kafka, cfg.Mail, smtp, logger)
	logger.WithFields(logrus.Fields{
		"topic":   cfg.Kafka.EmailTopic,
		"group":   cfg.Kafka.GroupID,
		"workers": cfg.Mail.Workers,
	}).Info("Starting email consumer")

	if err := consumer.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Email consumer stopped with error")
	}
}
