// Package session holds the credential produced by login and hands it to
// the backend client. A session is created by Login, attached to every
// authenticated request while unexpired and dropped by Logout.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
)

// ErrNoToken is returned when login succeeds without a token.
var ErrNoToken = errors.New("session: backend returned no token")

// Session is the authenticated identity of the current operator.
type Session struct {
	Token     string
	Role      string
	Email     string
	ExpiresAt time.Time
}

// Expired reports whether the token's exp claim lies before now. Tokens
// without exp never expire.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// FromToken builds a session, reading the expiry from the token's exp claim.
// The signature is not checked; the backend stays the authority.
func FromToken(token, role, email string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrNoToken
	}
	sess := Session{Token: token, Role: role, Email: email}

	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		// Opaque tokens are accepted as-is.
		return sess, nil
	}
	if exp, ok := numericClaim(claims["exp"]); ok {
		sess.ExpiresAt = time.Unix(exp, 0)
	}
	if sess.Email == "" {
		if email, ok := claims["email"].(string); ok {
			sess.Email = email
		}
	}
	return sess, nil
}

func numericClaim(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// Authenticator exchanges credentials for a token and role.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (token, role string, err error)
}

// Option customises a Holder.
type Option func(*Holder)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(h *Holder) {
		if now != nil {
			h.now = now
		}
	}
}

// Holder is the passed-down context object carrying the current session.
type Holder struct {
	mu      sync.RWMutex
	current *Session
	now     func() time.Time
}

// NewHolder returns an empty holder.
func NewHolder(opts ...Option) *Holder {
	h := &Holder{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Login authenticates through auth and stores the resulting session.
func (h *Holder) Login(ctx context.Context, auth Authenticator, email, password string) (Session, error) {
	if auth == nil {
		return Session{}, fmt.Errorf("session: authenticator is nil")
	}
	token, role, err := auth.Login(ctx, email, password)
	if err != nil {
		return Session{}, fmt.Errorf("session: login: %w", err)
	}
	sess, err := FromToken(token, role, email)
	if err != nil {
		return Session{}, err
	}
	h.Set(sess)
	return sess, nil
}

// Set replaces the current session.
func (h *Holder) Set(sess Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = &sess
}

// Current returns the session when one exists and has not expired.
func (h *Holder) Current() (Session, bool) {
	if h == nil {
		return Session{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil || h.current.Expired(h.now()) {
		return Session{}, false
	}
	return *h.current, true
}

// Token returns the bearer token to attach, or "" when none applies.
func (h *Holder) Token() string {
	sess, ok := h.Current()
	if !ok {
		return ""
	}
	return sess.Token
}

// Logout drops the session.
func (h *Holder) Logout() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = nil
}
