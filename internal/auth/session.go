package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"feedsync/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrNotSignedIn is returned when an operation needs a session and there is
// none.
var ErrNotSignedIn = errors.New("auth: not signed in")

// SessionStore persists the session between runs.
type SessionStore interface {
	LoadSession(ctx context.Context) (*model.Session, error)
	SaveSession(ctx context.Context, session *model.Session) error
	ClearSession(ctx context.Context) error
}

// Identity resolves the user a token belongs to when the token itself does
// not say.
type Identity interface {
	Me(ctx context.Context) (string, error)
}

// Provider exposes the persisted bearer token and the current user id.
type Provider struct {
	store  SessionStore
	logger *zap.Logger

	mu      sync.RWMutex
	session model.Session
}

// NewProvider creates a provider backed by store.
func NewProvider(store SessionStore, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{store: store, logger: logger}
}

// Load restores the persisted session, if any.
func (p *Provider) Load(ctx context.Context) error {
	s, err := p.store.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil
	}
	p.mu.Lock()
	p.session = *s
	p.mu.Unlock()
	return nil
}

// Token returns the bearer token, or "" when signed out.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session.Token
}

// UserID returns the current user id, or "" when signed out.
func (p *Provider) UserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session.UserID
}

// RequireUser returns the current user id or ErrNotSignedIn.
func (p *Provider) RequireUser() (string, error) {
	if id := p.UserID(); id != "" {
		return id, nil
	}
	return "", ErrNotSignedIn
}

// Login stores token as the current session. The user id comes from the
// token claims; when the token carries none, identity is asked.
func (p *Provider) Login(ctx context.Context, token string, identity Identity) error {
	if token == "" {
		return fmt.Errorf("login: empty token")
	}

	userID, err := UserIDFromToken(token)
	if err != nil {
		p.logger.Debug("token carries no user id", zap.Error(err))
	}

	p.mu.Lock()
	p.session = model.Session{Token: token, UserID: userID}
	p.mu.Unlock()

	if userID == "" {
		if identity == nil {
			return fmt.Errorf("login: token has no user id and no identity source")
		}
		userID, err = identity.Me(ctx)
		if err != nil {
			p.mu.Lock()
			p.session = model.Session{}
			p.mu.Unlock()
			return fmt.Errorf("login: resolve user: %w", err)
		}
		p.mu.Lock()
		p.session.UserID = userID
		p.mu.Unlock()
	}

	session := model.Session{Token: token, UserID: userID}
	if err := p.store.SaveSession(ctx, &session); err != nil {
		return fmt.Errorf("login: save session: %w", err)
	}
	p.logger.Info("signed in", zap.String("user_id", userID))
	return nil
}

// Logout forgets the session.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	p.session = model.Session{}
	p.mu.Unlock()

	if err := p.store.ClearSession(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// UserIDFromToken reads the user id from the token claims without checking
// the signature; the server verifies tokens, the client only needs to know
// who it is.
func UserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if id, ok := claims["userId"].(string); ok && id != "" {
		return id, nil
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("parse token subject: %w", err)
	}
	if sub == "" {
		return "", fmt.Errorf("parse token: no user id claim")
	}
	return sub, nil
}
