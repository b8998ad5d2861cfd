// Package session carries the authenticated caller through a request.
package session

import (
	"context"
	"slices"
)

type Session struct {
	UserID     string   `json:"user_id"`
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	AuthMethod string   `json:"auth_method"`
}

// HasRole reports whether the session holds any of roles.
func (s *Session) HasRole(roles ...string) bool {
	if s == nil {
		return false
	}
	for _, r := range roles {
		if slices.Contains(s.Roles, r) {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns nil for unauthenticated requests.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// ActorID is the user id to record as the author of a write, or "system".
func ActorID(ctx context.Context) string {
	if s := FromContext(ctx); s != nil && s.UserID != "" {
		return s.UserID
	}
	return "system"
}
