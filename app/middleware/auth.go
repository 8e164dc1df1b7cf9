package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	// UserKey holds the authenticated *entity.User in the echo context.
	UserKey = "user"
)

type authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*entity.User, error)
}

type AuthMiddleware struct {
	sessions authenticator
	logger   logrus.FieldLogger
}

func NewAuthMiddleware(sessions authenticator, logger logrus.FieldLogger) *AuthMiddleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthMiddleware{sessions: sessions, logger: logger}
}

// RequireAuth accepts the access token from the access_token cookie or an
// "Authorization: Bearer" header, in that order.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		accessToken, errMsg := accessTokenFrom(c)
		if errMsg != "" {
			m.logger.Debug(errMsg)
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": errMsg,
			})
		}

		user, err := m.sessions.Authenticate(c.Request().Context(), accessToken)
		if err != nil {
			m.logger.WithError(err).Debug("Access token rejected")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid or expired token",
			})
		}

		c.Set(UserKey, user)
		c.Set("user_id", user.ID.String())

		return next(c)
	}
}

func accessTokenFrom(c echo.Context) (string, string) {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, ""
	}

	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", "missing access token"
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", "invalid authorization header format"
	}
	return parts[1], ""
}
