package http

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const minNameLength = 3

type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     string  `json:"name"`
	Surname  string  `json:"surname"`
	Timezone string  `json:"timezone,omitempty"`
	Image    *string `json:"image,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ActivateRequest struct {
	Email string `json:"email" query:"email"`
	Code  string `json:"code" query:"code"`
}

type ResendVerificationRequest struct {
	Email string `json:"email"`
}

type UpdateProfileRequest struct {
	Name     *string `json:"name,omitempty"`
	Surname  *string `json:"surname,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
	Image    *string `json:"image,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (r *RegisterRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	if err := validateName("name", r.Name); err != nil {
		return err
	}
	return validateName("surname", r.Surname)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return errors.New("email and password are required")
	}
	return nil
}

func (r *ActivateRequest) Validate() error {
	if r.Email == "" || r.Code == "" {
		return errors.New("email and code are required")
	}
	return nil
}

func (r *ResendVerificationRequest) Validate() error {
	return validateEmail(r.Email)
}

func (r *UpdateProfileRequest) Validate() error {
	if r.Name != nil {
		if err := validateName("name", *r.Name); err != nil {
			return err
		}
	}
	if r.Surname != nil {
		if err := validateName("surname", *r.Surname); err != nil {
			return err
		}
	}
	if r.Timezone != nil && strings.TrimSpace(*r.Timezone) == "" {
		return errors.New("timezone must not be empty")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email is not a valid address")
	}
	return nil
}

func validateName(field, value string) error {
	if utf8.RuneCountInString(strings.TrimSpace(value)) < minNameLength {
		return fmt.Errorf("%s must be at least %d characters long", field, minNameLength)
	}
	return nil
}
