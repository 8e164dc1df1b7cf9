package cmd

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/controller"
	"github.com/vibast-solutions/ms-go-credentials/app/mailer"
	"github.com/vibast-solutions/ms-go-credentials/app/metrics"
	"github.com/vibast-solutions/ms-go-credentials/app/middleware"
	"github.com/vibast-solutions/ms-go-credentials/app/notification"
	"github.com/vibast-solutions/ms-go-credentials/app/repository"
	"github.com/vibast-solutions/ms-go-credentials/app/service"
	"github.com/vibast-solutions/ms-go-credentials/app/token"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveWithConsumer bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the HTTP (Echo) server for registration, activation and token management. With --with-consumer the email consumer runs in the same process.`,
	Run:   runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithConsumer, "with-consumer", false, "also run the email consumer")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := openDB(ctx, cfg)
	defer db.Close()

	logger := logrus.StandardLogger()
	producer := notification.NewProducer(cfg.Kafka, logger)
	defer closeLogged(producer, "email producer", logger)

	e, err := newHTTPServer(cfg, db, producer, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build HTTP server")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logger.WithField("addr", addr).Info("Starting HTTP server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server")
		return e.Shutdown(shutdownCtx)
	})
	if serveWithConsumer {
		smtp := mailer.NewSMTPMailer(cfg.SMTP, logger)
		defer closeLogged(smtp, "SMTP session", logger)
		consumer := notification.NewConsumer(cfg.Kafka, cfg.Mail, smtp, logger)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("Server stopped with error")
	}
}

func newHTTPServer(cfg *config.Config, db *sql.DB, producer *notification.Producer, logger *logrus.Logger) (*echo.Echo, error) {
	codec, err := token.NewCodec(cfg.JWT.Secret, cfg.JWT.Algorithm)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(db)
	verificationRepo := repository.NewEmailVerificationRepository(db)
	bannedRepo := repository.NewBannedRefreshTokenRepository(db)

	sessions := service.NewSessionManager(userRepo, bannedRepo, codec, cfg, service.WithSessionLogger(logger))
	mail := service.NewMailService(producer, cfg.App.ServerURL, logger)
	activation := service.NewActivationWorkflow(userRepo, verificationRepo, mail, cfg, service.WithActivationLogger(logger))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		if err := db.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	authController := controller.NewAuthController(sessions, activation, mail, cfg, logger)
	authMiddleware := middleware.NewAuthMiddleware(sessions, logger)
	controller.RegisterRoutes(e, authController, authMiddleware)

	return e, nil
}
