package entity

import "time"

const BearerType = "Bearer"

type AccessToken struct {
	Token     string
	Type      string
	ExpiresIn time.Duration
}

type RefreshToken struct {
	Token     string
	Type      string
	ExpiresIn time.Duration
	JTI       string
}

// TokenPair is what login and refresh hand back; the two legs never share a jti.
type TokenPair struct {
	AccessToken  AccessToken
	RefreshToken RefreshToken
}
