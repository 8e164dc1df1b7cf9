package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/app/metrics"

	"github.com/sirupsen/logrus"
)

const verifyPath = "/api/auth/verify"

type emailPublisher interface {
	SendEmail(ctx context.Context, msg entity.EmailMessage) error
}

// MailService composes outgoing emails and hands them to the notification channel.
type MailService struct {
	publisher emailPublisher
	serverURL string
	logger    logrus.FieldLogger
}

func NewMailService(publisher emailPublisher, serverURL string, logger logrus.FieldLogger) *MailService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MailService{
		publisher: publisher,
		serverURL: serverURL,
		logger:    logger,
	}
}

// SendVerifyCode publishes the activation email for to. It returns once the
// message is accepted by the channel, not when it is delivered.
func (s *MailService) SendVerifyCode(ctx context.Context, to, code string) error {
	msg := VerifyCodeMessage(s.serverURL, to, code)

	err := s.publisher.SendEmail(ctx, msg)
	metrics.EmailsPublishedTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		s.logger.WithError(err).WithField("email", to).Error("Failed to publish verification email")
		return err
	}
	return nil
}

func VerifyCodeMessage(serverURL, to, code string) entity.EmailMessage {
	query := url.Values{}
	query.Set("email", to)
	query.Set("code", code)
	link := serverURL + verifyPath + "?" + query.Encode()

	return entity.EmailMessage{
		Email:   to,
		Subject: fmt.Sprintf("Verification code for %s", to),
		Body:    fmt.Sprintf("Go to %s to activate your account.\nYour verification code: %s", link, code),
	}
}
