// Package auth talks to the identity provider: sign-up, sign-in, the PKCE code
// exchange, password reset and access-token verification.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrInvalidToken       = errors.New("auth: invalid or expired token")
	ErrUserExists         = errors.New("auth: user already registered")
	ErrEmailNotConfirmed  = errors.New("auth: email not confirmed")
	ErrInvalidCode        = errors.New("auth: invalid or used code")
)

type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

type SignUpRequest struct {
	Email         string
	Password      string
	RedirectTo    string
	CodeChallenge string
}

// SignUpResult carries a session only when the provider does not require
// email confirmation.
type SignUpResult struct {
	User                 User
	Session              *Session
	ConfirmationRequired bool
}

type Provider interface {
	SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, password string) error
	Authenticate(ctx context.Context, accessToken string) (*User, error)
}

type ctxKey struct{}

type authenticated struct {
	user  User
	token string
}

func WithUser(ctx context.Context, user User, accessToken string) context.Context {
	return context.WithValue(ctx, ctxKey{}, authenticated{user: user, token: accessToken})
}

func UserFromContext(ctx context.Context) (User, bool) {
	a, ok := ctx.Value(ctxKey{}).(authenticated)
	return a.user, ok
}

// TokenFromContext returns the access token the request was authenticated with.
func TokenFromContext(ctx context.Context) (string, bool) {
	a, ok := ctx.Value(ctxKey{}).(authenticated)
	return a.token, ok
}
