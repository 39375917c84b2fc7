package auth

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/Ladkan/MeChat/internal/store"
)

// DefaultSessionCookie is the cookie the auth service sets after login.
const DefaultSessionCookie = "session_token"

// SessionResolver looks the session cookie up in the shared sessions table.
type SessionResolver struct {
	sessions store.SessionStore
	cookie   string
	now      func() time.Time
}

// NewSessionResolver builds a resolver; cookie defaults to DefaultSessionCookie.
func NewSessionResolver(sessions store.SessionStore, cookie string) *SessionResolver {
	if cookie == "" {
		cookie = DefaultSessionCookie
	}
	return &SessionResolver{sessions: sessions, cookie: cookie, now: time.Now}
}

// Resolve implements Resolver.
func (r *SessionResolver) Resolve(ctx context.Context, req *stdhttp.Request) (Identity, error) {
	c, err := req.Cookie(r.cookie)
	if err != nil {
		return Identity{}, ErrNoCredentials
	}
	// Some auth services sign the cookie as "<token>.<signature>".
	token, _, _ := strings.Cut(c.Value, ".")
	if token == "" {
		return Identity{}, ErrNoCredentials
	}

	user, err := r.sessions.GetSessionUser(ctx, token, r.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, fmt.Errorf("%w: unknown or expired session", ErrUnauthorized)
		}
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}

	return Identity{ID: user.ID, Name: user.Name}, nil
}
