package controller

import (
	"github.com/vibast-solutions/ms-go-credentials/app/middleware"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, ctrl *AuthController, auth *middleware.AuthMiddleware) {
	group := e.Group("/api/auth")
	group.POST("/register", ctrl.Register)
	group.POST("/login", ctrl.Login)
	group.GET("/logout", ctrl.Logout)
	group.GET("/refresh", ctrl.Refresh)
	group.POST("/activate", ctrl.Activate)
	group.GET("/verify", ctrl.Activate)
	group.POST("/resend-verification", ctrl.ResendVerification)

	protected := group.Group("")
	protected.Use(auth.RequireAuth)
	protected.GET("/me", ctrl.Me)
	protected.PATCH("/me", ctrl.UpdateMe)
}
