// Package session carries the acting user's identity explicitly through
// the call graph instead of ambient process-wide state, so multiple
// simulated sessions can coexist in tests.
package session

import (
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/core/datamodel/user"
)

// Session identifies the actor behind a provider or orchestrator call.
// The token is forwarded verbatim to the backend, which remains the
// authority on its validity.
type Session struct {
	Token     string
	UserID    int64
	Email     string
	Role      user.Role
	ExpiresAt time.Time
}

// FromToken builds a Session from a bearer token. Claims are decoded
// without signature verification: the client never trusts them for
// authorization, only for labeling audit entries and log attrs.
func FromToken(token string) (*Session, error) {
	if token == "" {
		return nil, internal.ErrInvalidSession
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, internal.ErrInvalidSession.WithCause(err)
	}

	s := &Session{Token: token}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		if id, err := strconv.ParseInt(sub, 10, 64); err == nil {
			s.UserID = id
		}
	}
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	if role, ok := claims["role"].(string); ok {
		s.Role = user.ParseRole(role)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}

	return s, nil
}

// Expired reports whether the token carried an exp claim in the past.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

type ctxKey string

const sessionKey ctxKey = "session"

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}
