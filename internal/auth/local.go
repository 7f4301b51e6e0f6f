package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"taskflow/internal/logger"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const codeTTL = 15 * time.Minute

// Mailer delivers confirmation and recovery links.
type Mailer func(ctx context.Context, email, subject, link string)

func logMailer(_ context.Context, email, subject, link string) {
	logger.Info("Auth: Mail queued", zap.String("to", email), zap.String("subject", subject), zap.String("link", link))
}

type localUser struct {
	User
	hash      []byte
	confirmed bool
}

type code struct {
	userID    uuid.UUID
	challenge string
	expires   time.Time
}

type LocalOption func(*LocalProvider)

// WithAutoConfirm skips email confirmation: sign-up returns a session right away.
func WithAutoConfirm() LocalOption {
	return func(p *LocalProvider) {
		p.autoConfirm = true
	}
}

func WithMailer(m Mailer) LocalOption {
	return func(p *LocalProvider) {
		p.mail = m
	}
}

func WithBcryptCost(cost int) LocalOption {
	return func(p *LocalProvider) {
		p.cost = cost
	}
}

// LocalProvider keeps accounts in memory. It issues the same kind of tokens
// as the remote provider, so middleware does not care which one is running.
type LocalProvider struct {
	mtx     sync.Mutex
	users   map[string]*localUser
	codes   map[string]code
	revoked map[string]time.Time

	issuer      *TokenIssuer
	mail        Mailer
	cost        int
	autoConfirm bool
	now         func() time.Time
}

var _ Provider = (*LocalProvider)(nil)

func NewLocalProvider(issuer *TokenIssuer, opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		users:   make(map[string]*localUser),
		codes:   make(map[string]code),
		revoked: make(map[string]time.Time),
		issuer:  issuer,
		mail:    logMailer,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *LocalProvider) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	email := normalizeEmail(req.Email)
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p.mtx.Lock()
	if _, ok := p.users[email]; ok {
		p.mtx.Unlock()
		return nil, ErrUserExists
	}
	u := &localUser{
		User:      User{ID: uuid.New(), Email: email},
		hash:      hash,
		confirmed: p.autoConfirm,
	}
	p.users[email] = u
	var link string
	if !p.autoConfirm {
		link = p.issueCodeLocked(u.ID, req.CodeChallenge, req.RedirectTo)
	}
	p.mtx.Unlock()

	logger.Info("Auth: User registered", zap.String("user_id", u.ID.String()), zap.Bool("confirmed", u.confirmed))

	if !p.autoConfirm {
		p.mail(ctx, email, "Confirm your signup", link)
		return &SignUpResult{User: u.User, ConfirmationRequired: true}, nil
	}

	session, err := p.newSession(u.User)
	if err != nil {
		return nil, err
	}
	return &SignUpResult{User: u.User, Session: session}, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	p.mtx.Lock()
	u, ok := p.users[normalizeEmail(email)]
	p.mtx.Unlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.confirmed {
		return nil, ErrEmailNotConfirmed
	}
	return p.newSession(u.User)
}

// ExchangeCode redeems a confirmation or recovery code. Codes are single use;
// a code issued with a challenge only redeems with the matching verifier.
func (p *LocalProvider) ExchangeCode(ctx context.Context, c, verifier string) (*Session, error) {
	p.mtx.Lock()
	issued, ok := p.codes[c]
	if ok {
		delete(p.codes, c)
	}
	if !ok || p.now().After(issued.expires) || !verifyChallenge(issued.challenge, verifier) {
		p.mtx.Unlock()
		return nil, ErrInvalidCode
	}

	var user *localUser
	for _, u := range p.users {
		if u.ID == issued.userID {
			user = u
			break
		}
	}
	if user == nil {
		p.mtx.Unlock()
		return nil, ErrInvalidCode
	}
	user.confirmed = true
	p.mtx.Unlock()

	return p.newSession(user.User)
}

func (p *LocalProvider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := p.issuer.Parse(accessToken)
	if err != nil {
		return err
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.revoked[claims.ID] = claims.ExpiresAt.Time
	p.pruneLocked()
	return nil
}

// RequestPasswordReset mails a recovery link. Unknown addresses succeed
// silently so the endpoint cannot be used to probe for accounts.
func (p *LocalProvider) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	email = normalizeEmail(email)

	p.mtx.Lock()
	u, ok := p.users[email]
	var link string
	if ok {
		link = p.issueCodeLocked(u.ID, "", redirectTo)
	}
	p.mtx.Unlock()

	if ok {
		p.mail(ctx, email, "Reset your password", link)
	}
	return nil
}

func (p *LocalProvider) UpdatePassword(ctx context.Context, accessToken, password string) error {
	user, err := p.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()
	u, ok := p.users[user.Email]
	if !ok {
		return ErrInvalidToken
	}
	u.hash = hash
	return nil
}

func (p *LocalProvider) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	claims, err := p.issuer.Parse(accessToken)
	if err != nil {
		return nil, err
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()
	if _, revoked := p.revoked[claims.ID]; revoked {
		return nil, fmt.Errorf("%w: signed out", ErrInvalidToken)
	}
	u, ok := p.users[normalizeEmail(claims.Email)]
	if !ok || u.ID.String() != claims.Subject {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	user := u.User
	return &user, nil
}

func (p *LocalProvider) newSession(u User) (*Session, error) {
	token, claims, err := p.issuer.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        u,
	}, nil
}

func (p *LocalProvider) issueCodeLocked(userID uuid.UUID, challenge, redirectTo string) string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	c := base64.RawURLEncoding.EncodeToString(buf)

	p.codes[c] = code{userID: userID, challenge: challenge, expires: p.now().Add(codeTTL)}

	if redirectTo == "" {
		return c
	}
	link, err := url.Parse(redirectTo)
	if err != nil {
		return c
	}
	q := link.Query()
	q.Set("code", c)
	link.RawQuery = q.Encode()
	return link.String()
}

func (p *LocalProvider) pruneLocked() {
	now := p.now()
	for jti, exp := range p.revoked {
		if now.After(exp) {
			delete(p.revoked, jti)
		}
	}
}
