package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"taskflow/internal/logger"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type RemoteConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// APIKey is sent as the apikey header on every call.
	APIKey    string
	JWTSecret string
	Timeout   time.Duration
}

// RemoteProvider is a client for a GoTrue-compatible auth server. Token grants
// go through oauth2; the remaining endpoints take and return JSON.
type RemoteProvider struct {
	base   string
	apiKey string
	secret []byte
	oauth  *oauth2.Config
	client *http.Client
	now    func() time.Time
}

var _ Provider = (*RemoteProvider)(nil)

func NewRemoteProvider(cfg RemoteConfig) (*RemoteProvider, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("auth base url: %w", err)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth: jwt secret is required to verify access tokens")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	p := &RemoteProvider{
		base:   base,
		apiKey: cfg.APIKey,
		secret: []byte(cfg.JWTSecret),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  base + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		now: time.Now,
	}
	p.client = &http.Client{Timeout: timeout, Transport: &apiKeyTransport{key: cfg.APIKey, next: otelhttp.NewTransport(http.DefaultTransport)}}
	return p, nil
}

type apiKeyTransport struct {
	key  string
	next http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.key == "" {
		return t.next.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set("apikey", t.key)
	return t.next.RoundTrip(r)
}

func (p *RemoteProvider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

type apiError struct {
	Code      string `json:"error_code"`
	Error     string `json:"error"`
	Message   string `json:"msg"`
	ErrorDesc string `json:"error_description"`
}

func (e apiError) matches(code string) bool {
	return e.Code == code || e.Error == code
}

func (e apiError) String() string {
	for _, s := range []string{e.Message, e.ErrorDesc, e.Error, e.Code} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}

// call sends body as JSON and decodes a 2xx response into out.
func (p *RemoteProvider) call(ctx context.Context, method, path, accessToken string, query url.Values, body, out any) error {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	target := p.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Error("Auth: Provider request failed", err, zap.String("path", path))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	logger.Debug("Auth: Provider responded",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("ms", time.Since(start)))

	if resp.StatusCode >= 300 {
		var ae apiError
		_ = json.NewDecoder(resp.Body).Decode(&ae)
		return &ProviderError{Status: resp.StatusCode, api: ae}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// ProviderError is a non-2xx answer that did not map to a sentinel.
type ProviderError struct {
	Status int
	api    apiError
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("auth provider: status %d: %s", e.Status, e.api.String())
}

type remoteUser struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	ConfirmedAt *time.Time `json:"email_confirmed_at"`
}

type remoteSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
	User         remoteUser `json:"user"`
	// Some servers answer sign-up with the bare user object.
	ID    string `json:"id"`
	Email string `json:"email"`
}

func parseRemoteUser(id, email string) (*User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("provider returned bad user id %q: %w", id, err)
	}
	return &User{ID: uid, Email: email}, nil
}

func (p *RemoteProvider) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	body := map[string]string{
		"email":    req.Email,
		"password": req.Password,
	}
	if req.CodeChallenge != "" {
		body["code_challenge"] = req.CodeChallenge
		body["code_challenge_method"] = "s256"
	}
	query := url.Values{}
	if req.RedirectTo != "" {
		query.Set("redirect_to", req.RedirectTo)
	}

	var resp remoteSession
	if err := p.call(ctx, http.MethodPost, "/signup", "", query, body, &resp); err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && (pe.api.matches("user_already_exists") || pe.Status == http.StatusUnprocessableEntity) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	if resp.AccessToken == "" {
		id, email := resp.ID, resp.Email
		if id == "" {
			id, email = resp.User.ID, resp.User.Email
		}
		user, err := parseRemoteUser(id, email)
		if err != nil {
			return nil, err
		}
		return &SignUpResult{User: *user, ConfirmationRequired: true}, nil
	}

	session, err := p.sessionFromToken(&oauth2.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		Expiry:       p.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	})
	if err != nil {
		return nil, err
	}
	return &SignUpResult{User: session.User, Session: session}, nil
}

func (p *RemoteProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	tok, err := p.oauth.PasswordCredentialsToken(p.oauthContext(ctx), email, password)
	if err != nil {
		return nil, p.grantError(err, ErrInvalidCredentials)
	}
	return p.sessionFromToken(tok)
}

func (p *RemoteProvider) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := p.oauth.Exchange(p.oauthContext(ctx), code, opts...)
	if err != nil {
		return nil, p.grantError(err, ErrInvalidCode)
	}
	return p.sessionFromToken(tok)
}

func (p *RemoteProvider) grantError(err error, rejected error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return fmt.Errorf("token request: %w", err)
	}

	var ae apiError
	_ = json.Unmarshal(re.Body, &ae)
	if ae.matches("email_not_confirmed") || re.ErrorCode == "email_not_confirmed" {
		return ErrEmailNotConfirmed
	}
	switch re.Response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return rejected
	}
	return &ProviderError{Status: re.Response.StatusCode, api: ae}
}

func (p *RemoteProvider) SignOut(ctx context.Context, accessToken string) error {
	return p.call(ctx, http.MethodPost, "/logout", accessToken, nil, nil, nil)
}

func (p *RemoteProvider) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return p.call(ctx, http.MethodPost, "/recover", "", query, map[string]string{"email": email}, nil)
}

func (p *RemoteProvider) UpdatePassword(ctx context.Context, accessToken, password string) error {
	err := p.call(ctx, http.MethodPut, "/user", accessToken, nil, map[string]string{"password": password}, nil)
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Status == http.StatusUnauthorized {
		return ErrInvalidToken
	}
	return err
}

// Authenticate verifies the token signature locally instead of asking the server.
func (p *RemoteProvider) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	claims, err := parseToken(accessToken, p.secret, p.now)
	if err != nil {
		return nil, err
	}
	return claims.User()
}

func (p *RemoteProvider) sessionFromToken(tok *oauth2.Token) (*Session, error) {
	user, err := p.Authenticate(context.Background(), tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("provider issued unusable token: %w", err)
	}
	return &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
		User:         *user,
	}, nil
}
