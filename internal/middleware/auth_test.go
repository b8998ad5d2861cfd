package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"medops-bknd/internal/auth"
	"medops-bknd/internal/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type mockVerifier struct {
	VerifyTokenFunc func(token string, kind auth.TokenKind) (*auth.Claims, error)
}

func (m *mockVerifier) VerifyToken(token string, kind auth.TokenKind) (*auth.Claims, error) {
	return m.VerifyTokenFunc(token, kind)
}

type mockVersions struct {
	CheckTokenVersionFunc func(ctx context.Context, userID string, v int) (bool, error)
}

func (m *mockVersions) CheckTokenVersion(ctx context.Context, userID string, v int) (bool, error) {
	return m.CheckTokenVersionFunc(ctx, userID, v)
}

func acceptAll(roles ...string) *mockVerifier {
	return &mockVerifier{VerifyTokenFunc: func(token string, kind auth.TokenKind) (*auth.Claims, error) {
		if token != "good" || kind != auth.AccessToken {
			return nil, errors.New("bad token")
		}
		return &auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
			Version:          2,
			AuthMethod:       "local",
			Roles:            roles,
		}, nil
	}}
}

func currentVersion(v int) *mockVersions {
	return &mockVersions{CheckTokenVersionFunc: func(_ context.Context, _ string, got int) (bool, error) {
		return got == v, nil
	}}
}

func echoSession() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := session.FromContext(r.Context())
		w.Header().Set("X-User", s.UserID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTAuth(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		query    string
		upgrade  bool
		versions *mockVersions
		want     int
	}{
		{name: "ok", header: "Bearer good", versions: currentVersion(2), want: http.StatusOK},
		{name: "missing", versions: currentVersion(2), want: http.StatusUnauthorized},
		{name: "no bearer prefix", header: "good", versions: currentVersion(2), want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer bad", versions: currentVersion(2), want: http.StatusUnauthorized},
		{name: "revoked", header: "Bearer good", versions: currentVersion(3), want: http.StatusUnauthorized},
		{name: "version lookup fails", header: "Bearer good", versions: &mockVersions{
			CheckTokenVersionFunc: func(context.Context, string, int) (bool, error) { return false, errors.New("db down") },
		}, want: http.StatusInternalServerError},
		{name: "websocket query token", query: "?access_token=good", upgrade: true, versions: currentVersion(2), want: http.StatusOK},
		{name: "query token without upgrade", query: "?access_token=good", versions: currentVersion(2), want: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewAuthMiddleware(acceptAll("operator"), tc.versions, zap.NewNop())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stream"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rec := httptest.NewRecorder()

			m.JWTAuth(echoSession()).ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, "u1", rec.Header().Get("X-User"))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole("dispatcher")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	run := func(s *session.Session) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatches", nil)
		if s != nil {
			req = req.WithContext(session.WithSession(req.Context(), s))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, run(nil))
	assert.Equal(t, http.StatusForbidden, run(&session.Session{UserID: "d", Roles: []string{"doctor"}}))
	assert.Equal(t, http.StatusNoContent, run(&session.Session{UserID: "x", Roles: []string{"dispatcher"}}))
	assert.Equal(t, http.StatusNoContent, run(&session.Session{UserID: "a", Roles: []string{"admin"}}))
}
