package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/dto"
	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/app/metrics"
	"github.com/vibast-solutions/ms-go-credentials/app/repository"
	"github.com/vibast-solutions/ms-go-credentials/app/token"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	Update(ctx context.Context, user *entity.User) error
}

type bannedTokenRepository interface {
	Ban(ctx context.Context, jti string) (bool, error)
	IsBanned(ctx context.Context, jti string) (bool, error)
}

type tokenCodec interface {
	Encode(claims token.Claims, ttl time.Duration) (string, error)
	Decode(tokenString string) (*token.Claims, error)
}

type SessionManagerOption func(*SessionManager)

// WithPasswordCost sets the bcrypt work factor used for new hashes.
func WithPasswordCost(cost int) SessionManagerOption {
	return func(m *SessionManager) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			m.passwordCost = cost
		}
	}
}

func WithSessionLogger(logger logrus.FieldLogger) SessionManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// SessionManager owns user credentials and the access/refresh token lifecycle.
// A refresh token's jti moves from issued to banned exactly once.
type SessionManager struct {
	users        userRepository
	bans         bannedTokenRepository
	codec        tokenCodec
	cfg          *config.Config
	passwordCost int
	dummyHash    []byte
	logger       logrus.FieldLogger
}

func NewSessionManager(
	users userRepository,
	bans bannedTokenRepository,
	codec tokenCodec,
	cfg *config.Config,
	opts ...SessionManagerOption,
) *SessionManager {
	m := &SessionManager{
		users:        users,
		bans:         bans,
		codec:        codec,
		cfg:          cfg,
		passwordCost: bcrypt.DefaultCost,
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	// Unknown addresses are checked against dummyHash so both login failures cost one bcrypt round.
	m.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("credentials-dummy-password"), m.passwordCost)
	return m
}

// CreateUser persists a new, not yet activated account. No tokens are issued.
func (m *SessionManager) CreateUser(ctx context.Context, candidate dto.UserCandidate) (*entity.User, error) {
	_, err := m.users.FindByEmail(ctx, candidate.Email)
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if err := m.cfg.Password.Policy.Validate(candidate.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(candidate.Password), m.passwordCost)
	if err != nil {
		return nil, err
	}

	timezone := candidate.Timezone
	if timezone == "" {
		timezone = entity.DefaultTimezone
	}

	now := time.Now()
	user := &entity.User{
		ID:           uuid.New(),
		Email:        candidate.Email,
		PasswordHash: string(hashedPassword),
		Name:         candidate.Name,
		Surname:      candidate.Surname,
		IsActive:     false,
		Timezone:     timezone,
		Image:        nullString(candidate.Image),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	m.logger.WithField("user_id", user.ID.String()).Info("User created")
	return user, nil
}

// Login checks the password and issues a fresh token pair for an active account.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*entity.TokenPair, error) {
	user, err := m.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(m.dummyHash, []byte(password))
		metrics.TokensIssuedTotal.WithLabelValues("login", metrics.ResultFailure).Inc()
		return nil, ErrWrongCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.TokensIssuedTotal.WithLabelValues("login", metrics.ResultFailure).Inc()
		return nil, ErrWrongCredentials
	}

	if !user.IsActive {
		metrics.TokensIssuedTotal.WithLabelValues("login", metrics.ResultFailure).Inc()
		return nil, ErrInvalidCredentials
	}

	pair, err := m.issuePair(user.ID)
	metrics.TokensIssuedTotal.WithLabelValues("login", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout bans the refresh token's jti. Banning an already banned jti is not an error.
func (m *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	claims, err := m.decodeRefresh(refreshToken)
	if err != nil {
		return err
	}

	banned, err := m.bans.Ban(ctx, claims.ID)
	if err != nil {
		return err
	}
	if banned {
		metrics.RefreshTokensBannedTotal.WithLabelValues("logout").Inc()
	}
	return nil
}

// Refresh trades a live refresh token for a new pair. The presented jti is
// banned before the successor is minted, so a token can be redeemed once even
// under concurrent requests.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*entity.TokenPair, error) {
	pair, err := m.refresh(ctx, refreshToken)
	metrics.TokensIssuedTotal.WithLabelValues("refresh", metrics.Result(err)).Inc()
	return pair, err
}

func (m *SessionManager) refresh(ctx context.Context, refreshToken string) (*entity.TokenPair, error) {
	claims, err := m.decodeRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := m.subject(ctx, claims)
	if err != nil {
		return nil, err
	}

	banned, err := m.bans.Ban(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !banned {
		m.logger.WithField("user_id", user.ID.String()).Warn("Banned refresh token presented")
		return nil, ErrTokenBanned
	}
	metrics.RefreshTokensBannedTotal.WithLabelValues("refresh").Inc()

	return m.issuePair(user.ID)
}

// VerifyAccessToken reports whether token is a live access token of an existing user.
func (m *SessionManager) VerifyAccessToken(ctx context.Context, accessToken string) bool {
	_, err := m.Authenticate(ctx, accessToken)
	return err == nil
}

// VerifyRefreshToken reports whether token is a live, unbanned refresh token
// of an existing user. It does not consume the token.
func (m *SessionManager) VerifyRefreshToken(ctx context.Context, refreshToken string) bool {
	claims, err := m.decodeRefresh(refreshToken)
	if err != nil {
		return false
	}
	if _, err := m.subject(ctx, claims); err != nil {
		return false
	}

	banned, err := m.bans.IsBanned(ctx, claims.ID)
	if err != nil {
		m.logger.WithError(err).Error("Failed to check refresh token ban list")
		return false
	}
	return !banned
}

// Authenticate resolves the owner of an access token.
func (m *SessionManager) Authenticate(ctx context.Context, accessToken string) (*entity.User, error) {
	claims, err := m.codec.Decode(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != token.TypeAccess {
		return nil, ErrInvalidToken
	}
	return m.subject(ctx, claims)
}

func (m *SessionManager) GetUser(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	user, err := m.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of update. The password is
// re-hashed only when it differs from the stored one.
func (m *SessionManager) UpdateProfile(ctx context.Context, id uuid.UUID, update dto.ProfileUpdate) (*entity.User, error) {
	user, err := m.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Surname != nil {
		user.Surname = *update.Surname
	}
	if update.Timezone != nil {
		user.Timezone = *update.Timezone
	}
	if update.Image != nil {
		user.Image = nullString(update.Image)
	}
	if update.Password != nil {
		if err := m.cfg.Password.Policy.Validate(*update.Password); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(*update.Password)) != nil {
			hashedPassword, err := bcrypt.GenerateFromPassword([]byte(*update.Password), m.passwordCost)
			if err != nil {
				return nil, err
			}
			user.PasswordHash = string(hashedPassword)
		}
	}

	if err := m.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (m *SessionManager) decodeRefresh(refreshToken string) (*token.Claims, error) {
	claims, err := m.codec.Decode(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != token.TypeRefresh {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: refresh token has no identifier", ErrNotFound)
	}
	return claims, nil
}

func (m *SessionManager) subject(ctx context.Context, claims *token.Claims) (*entity.User, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return m.GetUser(ctx, id)
}

func (m *SessionManager) issuePair(userID uuid.UUID) (*entity.TokenPair, error) {
	accessTTL := m.cfg.JWT.AccessTokenTTL
	refreshTTL := m.cfg.JWT.RefreshTokenTTL

	access, err := m.codec.Encode(token.Claims{
		Type:             token.TypeAccess,
		RegisteredClaims: registered(userID, ""),
	}, accessTTL)
	if err != nil {
		return nil, err
	}

	jti := uuid.NewString()
	refresh, err := m.codec.Encode(token.Claims{
		Type:             token.TypeRefresh,
		RegisteredClaims: registered(userID, jti),
	}, refreshTTL)
	if err != nil {
		return nil, err
	}

	return &entity.TokenPair{
		AccessToken: entity.AccessToken{
			Token:     access,
			Type:      entity.BearerType,
			ExpiresIn: accessTTL,
		},
		RefreshToken: entity.RefreshToken{
			Token:     refresh,
			Type:      entity.BearerType,
			ExpiresIn: refreshTTL,
			JTI:       jti,
		},
	}, nil
}

func registered(userID uuid.UUID, jti string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject: userID.String(),
		ID:      jti,
	}
}

func nullString(value *string) sql.NullString {
	if value == nil || *value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
