package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/dto"
	httpdto "github.com/vibast-solutions/ms-go-credentials/app/dto/http"
	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/app/middleware"
	"github.com/vibast-solutions/ms-go-credentials/app/service"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type sessionService interface {
	CreateUser(ctx context.Context, candidate dto.UserCandidate) (*entity.User, error)
	Login(ctx context.Context, email, password string) (*entity.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*entity.TokenPair, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update dto.ProfileUpdate) (*entity.User, error)
}

type activationService interface {
	CreateVerifyCode(ctx context.Context, user *entity.User) (*entity.EmailVerification, error)
	ActivateEmail(ctx context.Context, email, code string) (*entity.User, error)
	ResendVerifyCode(ctx context.Context, email string) error
}

type verifyCodeMailer interface {
	SendVerifyCode(ctx context.Context, to, code string) error
}

type AuthController struct {
	sessions   sessionService
	activation activationService
	mail       verifyCodeMailer
	cfg        *config.Config
	logger     logrus.FieldLogger
}

func NewAuthController(
	sessions sessionService,
	activation activationService,
	mail verifyCodeMailer,
	cfg *config.Config,
	logger logrus.FieldLogger,
) *AuthController {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthController{
		sessions:   sessions,
		activation: activation,
		mail:       mail,
		cfg:        cfg,
		logger:     logger,
	}
}

// Register creates an inactive account and mails its verification code.
func (c *AuthController) Register(ctx echo.Context) error {
	var req httpdto.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		c.logger.WithError(err).Debug("Failed to bind register request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	reqCtx := ctx.Request().Context()
	user, err := c.sessions.CreateUser(reqCtx, dto.UserCandidate{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Surname:  req.Surname,
		Timezone: req.Timezone,
		Image:    req.Image,
	})
	if err != nil {
		return c.fail(ctx, err, "Register failed")
	}

	message := "registration successful, check your email to activate the account"
	verification, err := c.activation.CreateVerifyCode(reqCtx, user)
	if err == nil {
		err = c.mail.SendVerifyCode(reqCtx, user.Email, verification.Code)
	}
	if err != nil {
		c.logger.WithError(err).WithField("user_id", user.ID.String()).Error("Failed to dispatch verification code")
		message = "registration successful, but the verification email could not be sent; request a new one"
	}

	return ctx.JSON(http.StatusCreated, httpdto.RegisterResponse{
		User:    httpdto.NewUserResponse(user),
		Message: message,
	})
}

// Login returns a token pair in the body and as httponly cookies.
func (c *AuthController) Login(ctx echo.Context) error {
	var req httpdto.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	pair, err := c.sessions.Login(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		return c.fail(ctx, err, "Login failed")
	}

	c.setTokenCookies(ctx, pair)
	return ctx.JSON(http.StatusOK, httpdto.NewTokenResponse(pair))
}

func (c *AuthController) Logout(ctx echo.Context) error {
	refreshToken, ok := refreshTokenFrom(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "missing refresh token"})
	}

	if err := c.sessions.Logout(ctx.Request().Context(), refreshToken); err != nil {
		return c.fail(ctx, err, "Logout failed")
	}

	c.clearTokenCookies(ctx)
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "logged out successfully"})
}

func (c *AuthController) Refresh(ctx echo.Context) error {
	refreshToken, ok := refreshTokenFrom(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "missing refresh token"})
	}

	pair, err := c.sessions.Refresh(ctx.Request().Context(), refreshToken)
	if err != nil {
		return c.fail(ctx, err, "Refresh failed")
	}

	c.setTokenCookies(ctx, pair)
	return ctx.JSON(http.StatusOK, httpdto.NewTokenResponse(pair))
}

// Activate accepts the code as a JSON body (POST) or as the query string of
// the emailed link (GET).
func (c *AuthController) Activate(ctx echo.Context) error {
	var req httpdto.ActivateRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	user, err := c.activation.ActivateEmail(ctx.Request().Context(), req.Email, req.Code)
	if err != nil {
		return c.fail(ctx, err, "Activation failed")
	}

	return ctx.JSON(http.StatusOK, httpdto.NewUserResponse(user))
}

func (c *AuthController) ResendVerification(ctx echo.Context) error {
	var req httpdto.ResendVerificationRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	if err := c.activation.ResendVerifyCode(ctx.Request().Context(), req.Email); err != nil {
		return c.fail(ctx, err, "Resend verification failed")
	}

	return ctx.JSON(http.StatusAccepted, httpdto.MessageResponse{Message: "verification email sent"})
}

func (c *AuthController) Me(ctx echo.Context) error {
	user, ok := ctx.Get(middleware.UserKey).(*entity.User)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}
	return ctx.JSON(http.StatusOK, httpdto.NewUserResponse(user))
}

func (c *AuthController) UpdateMe(ctx echo.Context) error {
	user, ok := ctx.Get(middleware.UserKey).(*entity.User)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	var req httpdto.UpdateProfileRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	updated, err := c.sessions.UpdateProfile(ctx.Request().Context(), user.ID, dto.ProfileUpdate{
		Name:     req.Name,
		Surname:  req.Surname,
		Timezone: req.Timezone,
		Image:    req.Image,
		Password: req.Password,
	})
	if err != nil {
		return c.fail(ctx, err, "Profile update failed")
	}

	return ctx.JSON(http.StatusOK, httpdto.NewUserResponse(updated))
}

func (c *AuthController) fail(ctx echo.Context, err error, msg string) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.logger.WithError(err).Error(msg)
		return ctx.JSON(status, httpdto.ErrorResponse{Error: "internal server error"})
	}

	c.logger.WithError(err).Debug(msg)
	return ctx.JSON(status, httpdto.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrWeakPassword), errors.Is(err, service.ErrAlreadyActive):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateEntry):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func refreshTokenFrom(ctx echo.Context) (string, bool) {
	cookie, err := ctx.Cookie(middleware.RefreshTokenCookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (c *AuthController) setTokenCookies(ctx echo.Context, pair *entity.TokenPair) {
	ctx.SetCookie(c.tokenCookie(middleware.AccessTokenCookie, pair.AccessToken.Token, pair.AccessToken.ExpiresIn))
	ctx.SetCookie(c.tokenCookie(middleware.RefreshTokenCookie, pair.RefreshToken.Token, pair.RefreshToken.ExpiresIn))
}

func (c *AuthController) clearTokenCookies(ctx echo.Context) {
	ctx.SetCookie(c.tokenCookie(middleware.AccessTokenCookie, "", -1))
	ctx.SetCookie(c.tokenCookie(middleware.RefreshTokenCookie, "", -1))
}

func (c *AuthController) tokenCookie(name, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !c.cfg.App.Debug,
		SameSite: http.SameSiteLaxMode,
	}
}
