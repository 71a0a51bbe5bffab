// Package identity defines the primary identity provider consumed by the
// unlock gate. The gate treats issued access tokens as opaque strings.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials indicates the email/password pair was rejected.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrTokenInvalid indicates a session token is expired, revoked or unknown.
	ErrTokenInvalid = errors.New("session token invalid")
	// ErrUnavailable indicates the provider could not be reached or answered
	// with a server error.
	ErrUnavailable = errors.New("identity provider unavailable")
)

// Session is the result of a successful primary sign-in.
type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
	ExpiresAt    time.Time
}

// Provider is the primary, server-verified identity provider.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context) error
}

// TokenValidator is implemented by providers that can confirm a previously
// issued access token is still live.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) error
}

// Resumer is implemented by providers that can adopt a cached access token
// as their current session, so a later SignOut revokes it.
type Resumer interface {
	Resume(token string)
}

// SessionSource is implemented by providers that can report a live primary
// session without a new sign-in.
type SessionSource interface {
	CurrentSession(ctx context.Context) (Session, bool)
}
