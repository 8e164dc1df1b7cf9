package service

import (
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-credentials/app/token"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateEntry     = errors.New("duplicate entry")
	ErrInvalidCredentials = errors.New("account is not activated")
	ErrInvalidToken       = token.ErrInvalidToken
	ErrUserNotUpdated     = errors.New("user was not updated")
	ErrAlreadyActive      = errors.New("account is already active")
	ErrWeakPassword       = errors.New("password does not meet policy requirements")
)

// Login reports the same error for an unknown address and a wrong password.
var (
	ErrUserNotFound         = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrWrongCredentials     = fmt.Errorf("%w: invalid email or password", ErrNotFound)
	ErrTokenBanned          = fmt.Errorf("%w: refresh token is banned", ErrNotFound)
	ErrVerificationNotFound = fmt.Errorf("%w: verification code not found", ErrNotFound)
	ErrUserExists           = fmt.Errorf("%w: user already exists", ErrDuplicateEntry)
	ErrVerificationExists   = fmt.Errorf("%w: verification code already issued", ErrDuplicateEntry)
)
