package handlers

import (
	"errors"
	"net/http"
	"time"

	"medops-bknd/internal/config"
	"medops-bknd/internal/services"
	"medops-bknd/internal/session"

	"go.uber.org/zap"
)

const refreshCookie = "refresh_token"

type AuthHandler struct {
	authSvc *services.AuthService
	logr    *zap.Logger
	cfg     *config.Config
}

func NewAuthHandler(svc *services.AuthService, logr *zap.Logger, cfg *config.Config) *AuthHandler {
	return &AuthHandler{authSvc: svc, logr: logr, cfg: cfg}
}

type loginReq struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info"`
}

type ldapReq struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info"`
}

type tokenResp struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	ExpiresAt    time.Time          `json:"access_expires_at"`
	User         *services.UserInfo `json:"user,omitempty"`
}

// POST /auth/login
func (h *AuthHandler) LoginLocal(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	pair, user, err := h.authSvc.LoginLocal(r.Context(), req.Email, req.Password, req.DeviceInfo)
	if err != nil {
		h.logr.Warn("local login failed", zap.Error(err), zap.String("email", req.Email))
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExp)
	writeJSON(w, http.StatusOK, tokenResp{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExp,
		User:         user,
	})
}

// POST /auth/ldap
func (h *AuthHandler) LoginLDAP(w http.ResponseWriter, r *http.Request) {
	var req ldapReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	pair, user, err := h.authSvc.LoginLDAP(r.Context(), req.Username, req.Password, req.DeviceInfo)
	if err != nil {
		h.logr.Warn("ldap login failed", zap.Error(err), zap.String("username", req.Username))
		if errors.Is(err, services.ErrInvalidCredentials) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "directory login unavailable", http.StatusBadGateway)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExp)
	writeJSON(w, http.StatusOK, tokenResp{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExp,
		User:         user,
	})
}

// POST /auth/register (admin)
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	user, err := h.authSvc.Register(r.Context(), req)
	if err != nil {
		writeError(w, h.logr, "failed to register user", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.authSvc.Me(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, h.logr, "failed to load user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	DeviceInfo   string `json:"device_info,omitempty"`
}

// refreshToken prefers the cookie over the body.
func refreshToken(r *http.Request, body string) string {
	if cookie, err := r.Cookie(refreshCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return body
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	_ = decodeJSON(r, &req)

	tok := refreshToken(r, req.RefreshToken)
	if tok == "" {
		http.Error(w, "refresh token required", http.StatusBadRequest)
		return
	}

	pair, err := h.authSvc.Refresh(r.Context(), tok, req.DeviceInfo)
	if err != nil {
		h.logr.Warn("refresh failed", zap.Error(err))
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExp)
	writeJSON(w, http.StatusOK, tokenResp{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExp,
	})
}

type logoutReq struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	AllSessions  bool   `json:"all_sessions,omitempty"`
}

// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutReq
	_ = decodeJSON(r, &req)

	if req.AllSessions {
		sess := session.FromContext(r.Context())
		if sess == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := h.authSvc.RevokeAll(r.Context(), sess.UserID); err != nil {
			writeError(w, h.logr, "failed to logout", err)
			return
		}
	} else {
		tok := refreshToken(r, req.RefreshToken)
		if tok == "" {
			http.Error(w, "refresh token required", http.StatusBadRequest)
			return
		}
		if err := h.authSvc.Logout(r.Context(), tok); err != nil {
			h.logr.Warn("logout failed", zap.Error(err))
			http.Error(w, "failed to logout", http.StatusInternalServerError)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
}
