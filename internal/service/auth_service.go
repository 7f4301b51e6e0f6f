package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"taskflow/internal/auth"
	"taskflow/internal/logger"
	"unicode/utf8"

	"go.uber.org/zap"
)

const MinPasswordLength = 6

// AuthRedirects are the absolute URLs the provider sends users back to.
type AuthRedirects struct {
	Confirm string
	Reset   string
}

type AuthService struct {
	provider  auth.Provider
	redirects AuthRedirects
}

func NewAuthService(provider auth.Provider, redirects AuthRedirects) *AuthService {
	return &AuthService{provider: provider, redirects: redirects}
}

type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	// CodeChallenge is the S256 challenge of the caller's PKCE verifier.
	CodeChallenge string
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return NewValidationError("email", "must not be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return NewValidationError("email", "must be a valid email address")
	}
	return nil
}

func validatePassword(password, confirm string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return NewValidationError("password", "must be at least 6 characters")
	}
	if password != confirm {
		return NewValidationError("confirm_password", "passwords do not match")
	}
	return nil
}

// mapAuthError converts provider sentinels; anything unrecognised is reported
// as a provider failure.
func mapAuthError(err error, op string) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return NewBusinessError(CodeInvalidCredentials, "invalid email or password").Wrap(err)
	case errors.Is(err, auth.ErrInvalidToken):
		return NewBusinessError(CodeUnauthorized, "session is missing or expired").Wrap(err)
	case errors.Is(err, auth.ErrUserExists):
		return NewBusinessError(CodeUserExists, "an account with this email already exists").Wrap(err)
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		return NewBusinessError(CodeEmailNotConfirmed, "email address has not been confirmed").Wrap(err)
	case errors.Is(err, auth.ErrInvalidCode):
		return NewBusinessError(CodeInvalidCode, "link is invalid or has expired").Wrap(err)
	}
	logger.Error("Service: Auth provider failed", err, zap.String("operation", op))
	return NewBusinessError(CodeAuthProvider, "authentication service is unavailable", ToDetail("operation", op)).Wrap(err)
}

func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*auth.SignUpResult, error) {
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}

	res, err := s.provider.SignUp(ctx, auth.SignUpRequest{
		Email:         strings.TrimSpace(in.Email),
		Password:      in.Password,
		RedirectTo:    s.redirects.Confirm,
		CodeChallenge: in.CodeChallenge,
	})
	if err != nil {
		return nil, mapAuthError(err, "signup")
	}

	logger.Info("Service: User signed up",
		zap.String("user_id", res.User.ID.String()),
		zap.Bool("confirmation_required", res.ConfirmationRequired))
	return res, nil
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, NewValidationError("password", "must not be empty")
	}

	session, err := s.provider.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, mapAuthError(err, "signin")
	}
	return session, nil
}

func (s *AuthService) ExchangeCode(ctx context.Context, code, verifier string) (*auth.Session, error) {
	if code == "" {
		return nil, NewValidationError("code", "must not be empty")
	}
	session, err := s.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, mapAuthError(err, "exchange_code")
	}
	return session, nil
}

func (s *AuthService) SignOut(ctx context.Context, accessToken string) error {
	if err := s.provider.SignOut(ctx, accessToken); err != nil {
		return mapAuthError(err, "signout")
	}
	return nil
}

func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := s.provider.RequestPasswordReset(ctx, strings.TrimSpace(email), s.redirects.Reset); err != nil {
		return mapAuthError(err, "recover")
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, accessToken, password, confirm string) error {
	if err := validatePassword(password, confirm); err != nil {
		return err
	}
	if err := s.provider.UpdatePassword(ctx, accessToken, password); err != nil {
		return mapAuthError(err, "update_password")
	}
	return nil
}

func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (*auth.User, error) {
	if accessToken == "" {
		return nil, NewBusinessError(CodeUnauthorized, "session is missing or expired")
	}
	user, err := s.provider.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, mapAuthError(err, "authenticate")
	}
	return user, nil
}
