// Package memory provides an in-process identity.Provider for tests, demos
// and offline development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vdutts/vault/identity"
	"github.com/vdutts/vault/internal/uuid"
)

// DefaultTokenTTL is how long issued access tokens stay valid.
const DefaultTokenTTL = time.Hour

// ErrUserExists is returned by Register for an email already registered.
var ErrUserExists = errors.New("user already registered")

type user struct {
	id           string
	email        string
	passwordHash []byte
}

type tokenRecord struct {
	userID    string
	expiresAt time.Time
}

// Provider is a thread-safe in-memory identity provider. Tokens are random
// UUIDs prefixed with "tok-".
type Provider struct {
	mu      sync.Mutex
	users   map[string]user
	tokens  map[string]tokenRecord
	revoked map[string]struct{}
	current string
	ttl     time.Duration
	cost    int
	now     func() time.Time
}

var (
	_ identity.Provider       = (*Provider)(nil)
	_ identity.TokenValidator = (*Provider)(nil)
	_ identity.Resumer        = (*Provider)(nil)
	_ identity.SessionSource  = (*Provider)(nil)
)

// Option configures a Provider.
type Option func(*Provider)

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.ttl = ttl
	}
}

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) {
		p.cost = cost
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider creates an empty Provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		users:  make(map[string]user),
		tokens:  make(map[string]tokenRecord),
		revoked: make(map[string]struct{}),
		ttl:     DefaultTokenTTL,
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

// Register adds a user and returns its ID.
func (p *Provider) Register(email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", fmt.Errorf("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[email]; ok {
		return "", fmt.Errorf("%s: %w", email, ErrUserExists)
	}
	u := user{id: uuid.New(), email: email, passwordHash: hash}
	p.users[email] = u
	return u.id, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return identity.Session{}, err
	}
	email = normalizeEmail(email)

	p.mu.Lock()
	u, ok := p.users[email]
	p.mu.Unlock()
	if !ok {
		return identity.Session{}, identity.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return identity.Session{}, identity.ErrInvalidCredentials
	}

	token := "tok-" + uuid.New()
	expiresAt := p.now().Add(p.ttl)

	p.mu.Lock()
	p.tokens[token] = tokenRecord{userID: u.id, expiresAt: expiresAt}
	p.current = token
	p.mu.Unlock()

	return identity.Session{
		AccessToken: token,
		UserID:      u.id,
		Email:       u.email,
		ExpiresAt:   expiresAt,
	}, nil
}

// SignOut revokes the most recently issued token.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != "" {
		p.revokeLocked(p.current)
	}
	return nil
}

// CurrentSession returns the current session while its token is live.
func (p *Provider) CurrentSession(ctx context.Context) (identity.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == "" {
		return identity.Session{}, false
	}
	rec, ok := p.tokens[p.current]
	if !ok || !p.now().Before(rec.expiresAt) {
		return identity.Session{}, false
	}
	sess := identity.Session{AccessToken: p.current, UserID: rec.userID, ExpiresAt: rec.expiresAt}
	for _, u := range p.users {
		if u.id == rec.userID {
			sess.Email = u.email
			break
		}
	}
	return sess, true
}

// Resume makes token the current session.
func (p *Provider) Resume(token string) {
	p.mu.Lock()
	p.current = token
	p.mu.Unlock()
}

// Revoke invalidates token as if the server had ended the session.
func (p *Provider) Revoke(token string) {
	p.mu.Lock()
	p.revokeLocked(token)
	p.mu.Unlock()
}

func (p *Provider) revokeLocked(token string) {
	delete(p.tokens, token)
	p.revoked[token] = struct{}{}
	if p.current == token {
		p.current = ""
	}
}

// ValidateToken rejects revoked and expired tokens with
// identity.ErrTokenInvalid. The token table lives only as long as the
// process, so a token this Provider never issued yields
// identity.ErrUnavailable: it cannot be judged, only trusted or not.
func (p *Provider) ValidateToken(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	rec, ok := p.tokens[token]
	_, revoked := p.revoked[token]
	p.mu.Unlock()
	switch {
	case revoked:
		return identity.ErrTokenInvalid
	case !ok:
		return fmt.Errorf("token not issued by this provider: %w", identity.ErrUnavailable)
	case !p.now().Before(rec.expiresAt):
		return identity.ErrTokenInvalid
	}
	return nil
}
