package middleware

import (
	"context"
	"net/http"
	"strings"

	"medops-bknd/internal/auth"
	"medops-bknd/internal/session"

	"go.uber.org/zap"
)

type TokenVerifier interface {
	VerifyToken(token string, kind auth.TokenKind) (*auth.Claims, error)
}

// VersionChecker reports whether a token version is still current for the
// user. Bumping the stored version revokes every outstanding token.
type VersionChecker interface {
	CheckTokenVersion(ctx context.Context, userID string, tokenVersion int) (bool, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	versions VersionChecker
	logr     *zap.Logger
}

// NewAuthMiddleware creates a reusable JWT auth middleware instance
func NewAuthMiddleware(verifier TokenVerifier, versions VersionChecker, logr *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		versions: versions,
		logr:     logr,
	}
}

// bearer reads the token from the Authorization header, or from the
// access_token query parameter for websocket upgrades, which cannot carry
// custom headers from a browser.
func bearer(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		tok := strings.TrimPrefix(h, "Bearer ")
		return tok, tok != h && tok != ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if tok := r.URL.Query().Get("access_token"); tok != "" {
			return tok, true
		}
	}
	return "", false
}

// JWTAuth validates the access token and attaches a session to the context.
func (m *AuthMiddleware) JWTAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearer(r)
		if !ok {
			http.Error(w, "missing or malformed authorization", http.StatusUnauthorized)
			return
		}

		claims, err := m.verifier.VerifyToken(tokenString, auth.AccessToken)
		if err != nil {
			m.logr.Warn("token verification failed", zap.Error(err))
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		valid, err := m.versions.CheckTokenVersion(r.Context(), claims.Subject, claims.Version)
		if err != nil {
			m.logr.Error("failed checking token version", zap.Error(err), zap.String("user_id", claims.Subject))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !valid {
			m.logr.Warn("token version invalid", zap.String("user_id", claims.Subject))
			http.Error(w, "token revoked or invalid", http.StatusUnauthorized)
			return
		}

		ctx := session.WithSession(r.Context(), claims.Session())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole lets the request through when the session holds any of roles.
// Admins always pass.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := append([]string{"admin"}, roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.FromContext(r.Context())
			if s == nil {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			if !s.HasRole(allowed...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
