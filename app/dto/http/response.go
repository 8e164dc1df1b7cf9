package http

import (
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
)

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	IsActive  bool      `json:"is_active"`
	Timezone  string    `json:"timezone"`
	Image     *string   `json:"image"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUserResponse(user *entity.User) UserResponse {
	resp := UserResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		Name:      user.Name,
		Surname:   user.Surname,
		IsActive:  user.IsActive,
		Timezone:  user.Timezone,
		CreatedAt: user.CreatedAt,
	}
	if user.Image.Valid {
		image := user.Image.String
		resp.Image = &image
	}
	return resp
}

type RegisterResponse struct {
	User    UserResponse `json:"user"`
	Message string       `json:"message"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func NewTokenResponse(pair *entity.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken.Token,
		RefreshToken: pair.RefreshToken.Token,
		TokenType:    pair.AccessToken.Type,
		ExpiresIn:    int64(pair.AccessToken.ExpiresIn.Seconds()),
	}
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
