package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/app/metrics"
	"github.com/vibast-solutions/ms-go-credentials/app/repository"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type verificationRepository interface {
	FindByEmail(ctx context.Context, email string) (*entity.EmailVerification, error)
	Create(ctx context.Context, verification *entity.EmailVerification) error
	DeleteByEmail(ctx context.Context, email string) error
}

type verifyCodeSender interface {
	SendVerifyCode(ctx context.Context, to, code string) error
}

type ActivationOption func(*ActivationWorkflow)

func WithActivationLogger(logger logrus.FieldLogger) ActivationOption {
	return func(w *ActivationWorkflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithActivationClock(now func() time.Time) ActivationOption {
	return func(w *ActivationWorkflow) {
		if now != nil {
			w.now = now
		}
	}
}

// ActivationWorkflow issues single-use email verification codes and flips
// accounts to active when a matching code is presented.
type ActivationWorkflow struct {
	users         userRepository
	verifications verificationRepository
	sender        verifyCodeSender
	cfg           *config.Config
	now           func() time.Time
	logger        logrus.FieldLogger
}

func NewActivationWorkflow(
	users userRepository,
	verifications verificationRepository,
	sender verifyCodeSender,
	cfg *config.Config,
	opts ...ActivationOption,
) *ActivationWorkflow {
	w := &ActivationWorkflow{
		users:         users,
		verifications: verifications,
		sender:        sender,
		cfg:           cfg,
		now:           time.Now,
		logger:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CreateVerifyCode binds a fresh code to the user's email. At most one live
// code exists per email; an expired one is replaced.
func (w *ActivationWorkflow) CreateVerifyCode(ctx context.Context, user *entity.User) (*entity.EmailVerification, error) {
	now := w.now()

	existing, err := w.verifications.FindByEmail(ctx, user.Email)
	switch {
	case err == nil:
		if !existing.Expired(now) {
			return nil, ErrVerificationExists
		}
		if err := w.verifications.DeleteByEmail(ctx, user.Email); err != nil {
			return nil, err
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	verification := &entity.EmailVerification{
		Email:     user.Email,
		Code:      uuid.NewString(),
		ExpiresAt: now.Add(w.cfg.Verification.CodeTTL),
		CreatedAt: now,
	}

	if err := w.verifications.Create(ctx, verification); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrVerificationExists
		}
		return nil, err
	}
	return verification, nil
}

// ActivateUser marks user active when code matches the stored one. A missing
// record, a wrong code and an expired code are indistinguishable to the caller.
func (w *ActivationWorkflow) ActivateUser(ctx context.Context, code string, user *entity.User) error {
	err := w.activate(ctx, code, user)
	metrics.ActivationsTotal.WithLabelValues(metrics.Result(err)).Inc()
	return err
}

func (w *ActivationWorkflow) activate(ctx context.Context, code string, user *entity.User) error {
	verification, err := w.verifications.FindByEmail(ctx, user.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrVerificationNotFound
	}
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(verification.Code), []byte(code)) != 1 {
		return ErrVerificationNotFound
	}
	if verification.Expired(w.now()) {
		return ErrVerificationNotFound
	}

	user.IsActive = true
	if err := w.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotUpdated
		}
		return err
	}

	if err := w.verifications.DeleteByEmail(ctx, user.Email); err != nil {
		w.logger.WithError(err).WithField("user_id", user.ID.String()).Warn("Failed to delete used verification code")
	}

	w.logger.WithField("user_id", user.ID.String()).Info("User activated")
	return nil
}

// ActivateEmail resolves the account behind email and activates it with code.
// An unknown address reports the same error as a wrong code.
func (w *ActivationWorkflow) ActivateEmail(ctx context.Context, email, code string) (*entity.User, error) {
	user, err := w.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.ActivationsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, ErrVerificationNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := w.ActivateUser(ctx, code, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ResendVerifyCode issues a new code for an inactive account and mails it.
func (w *ActivationWorkflow) ResendVerifyCode(ctx context.Context, email string) error {
	user, err := w.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if user.IsActive {
		return ErrAlreadyActive
	}

	verification, err := w.CreateVerifyCode(ctx, user)
	if err != nil {
		return err
	}
	return w.sender.SendVerifyCode(ctx, user.Email, verification.Code)
}
