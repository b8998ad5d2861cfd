package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"slices"
	"strings"
	"time"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/auth"
	"medops-bknd/internal/config"
	"medops-bknd/internal/models"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// maxSessions caps concurrently valid refresh tokens per user.
const maxSessions = 2

type AuthService struct {
	db   *bun.DB
	jwt  *auth.JWTManager
	cfg  *config.Config
	logr *zap.Logger
}

func NewAuthService(db *bun.DB, jwt *auth.JWTManager, cfg *config.Config, logr *zap.Logger) *AuthService {
	return &AuthService{db: db, jwt: jwt, cfg: cfg, logr: logr}
}

// HashPassword uses bcrypt
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

func ComparePassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

type UserInfo struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Provider   string     `json:"provider"`
	Roles      []string   `json:"roles"`
	HospitalID *uuid.UUID `json:"hospital_id,omitempty"`
}

func userInfoOf(u *models.User) *UserInfo {
	return &UserInfo{
		ID:         u.ID.String(),
		Email:      u.Email,
		Name:       u.Name,
		Provider:   u.Provider,
		Roles:      u.Roles,
		HospitalID: u.HospitalID,
	}
}

var knownRoles = []string{models.RoleAdmin, models.RoleOperator, models.RoleDispatcher, models.RoleDoctor}

type RegisterUserRequest struct {
	Email      string     `json:"email"`
	Password   string     `json:"password"`
	Name       string     `json:"name"`
	Roles      []string   `json:"roles"`
	HospitalID *uuid.UUID `json:"hospital_id"`
}

func (r *RegisterUserRequest) Validate() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return apperr.Invalid("email", "must be a valid email address")
	}
	if len(r.Password) < 8 {
		return apperr.Invalid("password", "must be at least 8 characters")
	}
	if strings.TrimSpace(r.Name) == "" {
		return apperr.Invalid("name", "is required")
	}
	for _, role := range r.Roles {
		if !slices.Contains(knownRoles, role) {
			return apperr.Invalid("roles", fmt.Sprintf("unknown role %q", role))
		}
	}
	return nil
}

// Register creates a local account. Only admins reach this.
func (s *AuthService) Register(ctx context.Context, req RegisterUserRequest) (*UserInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Roles:        req.Roles,
		Provider:     "local",
		HospitalID:   req.HospitalID,
	}
	if _, err := s.db.NewInsert().Model(u).Returning("*").Exec(ctx); err != nil {
		return nil, apperr.Write("register user", err)
	}
	s.logr.Info("user registered", zap.String("user_id", u.ID.String()), zap.Strings("roles", u.Roles))
	return userInfoOf(u), nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*UserInfo, error) {
	var u models.User
	if err := s.db.NewSelect().Model(&u).Where("id = ?", userID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Fetch("user", err)
	}
	return userInfoOf(&u), nil
}

func (s *AuthService) issue(ctx context.Context, u *models.User, method, deviceInfo string) (*auth.TokenPair, error) {
	pair, err := s.jwt.GenerateTokenPair(auth.Subject{
		UserID:       u.ID.String(),
		Email:        u.Email,
		TokenVersion: u.TokenVersion,
		AuthMethod:   method,
		Roles:        u.Roles,
	}, s.cfg.AccessTokenTTL, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}
	if err := s.storeRefreshToken(ctx, u.ID, pair.RefreshToken, pair.RefreshExp, pair.RefreshJTI, deviceInfo); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return pair, nil
}

func (s *AuthService) touchLastLogin(ctx context.Context, id uuid.UUID) {
	now := time.Now().UTC()
	if _, err := s.db.NewUpdate().Model((*models.User)(nil)).
		Set("last_login_at = ?", now).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		s.logr.Debug("failed to update last login", zap.Error(err))
	}
}

// LoginLocal authenticates against the stored bcrypt hash.
func (s *AuthService) LoginLocal(ctx context.Context, email, password, deviceInfo string) (*auth.TokenPair, *UserInfo, error) {
	var u models.User
	err := s.db.NewSelect().Model(&u).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if u.PasswordHash == "" {
		return nil, nil, fmt.Errorf("account not configured for local login")
	}
	if err := ComparePassword(u.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	s.touchLastLogin(ctx, u.ID)
	pair, err := s.issue(ctx, &u, "local", deviceInfo)
	if err != nil {
		return nil, nil, err
	}
	return pair, userInfoOf(&u), nil
}

// normalizeLDAPUser strips a trailing @domain (any case) from the login name.
func normalizeLDAPUser(user, domain string) string {
	user = strings.TrimSpace(user)
	if domain == "" {
		return user
	}
	suffix := "@" + strings.ToLower(domain)
	if strings.HasSuffix(strings.ToLower(user), suffix) {
		return user[:len(user)-len(suffix)]
	}
	return user
}

func bindPrincipal(user, domain string) string {
	if domain == "" {
		return user
	}
	return user + "@" + strings.ToUpper(domain)
}

// rolesFromGroups maps directory groups named after console roles, e.g.
// "CN=dispatcher,OU=Groups,DC=city,DC=org", onto roles. Users in no such
// group get no roles and can only read.
func rolesFromGroups(memberOf []string) []string {
	var roles []string
	for _, dn := range memberOf {
		parsed, err := ldap.ParseDN(dn)
		if err != nil || len(parsed.RDNs) == 0 {
			continue
		}
		for _, attr := range parsed.RDNs[0].Attributes {
			if !strings.EqualFold(attr.Type, "cn") {
				continue
			}
			role := strings.ToLower(attr.Value)
			if slices.Contains(knownRoles, role) && !slices.Contains(roles, role) {
				roles = append(roles, role)
			}
		}
	}
	return roles
}

// LoginLDAP binds as the user, reads their directory entry and provisions or
// refreshes the local account.
func (s *AuthService) LoginLDAP(ctx context.Context, ldapUser, ldapPass, deviceInfo string) (*auth.TokenPair, *UserInfo, error) {
	username := normalizeLDAPUser(ldapUser, s.cfg.LDAPUserDomain)
	if username == "" || ldapPass == "" {
		return nil, nil, ErrInvalidCredentials
	}

	l, err := ldap.DialURL(s.cfg.LDAPServer, ldap.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}))
	if err != nil {
		s.logr.Error("LDAP dial failed", zap.Error(err), zap.String("server", s.cfg.LDAPServer))
		return nil, nil, fmt.Errorf("ldap connection failed")
	}
	defer func() {
		if closeErr := l.Close(); closeErr != nil {
			s.logr.Debug("LDAP close error", zap.Error(closeErr))
		}
	}()
	l.SetTimeout(30 * time.Second)

	if err := l.Bind(bindPrincipal(username, s.cfg.LDAPUserDomain), ldapPass); err != nil {
		s.logr.Warn("LDAP bind failed", zap.String("username", username))
		return nil, nil, ErrInvalidCredentials
	}

	filter := fmt.Sprintf("(|(sAMAccountName=%[1]s)(uid=%[1]s))", ldap.EscapeFilter(username))
	sr, err := l.Search(ldap.NewSearchRequest(
		s.cfg.LDAPBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1,
		0,
		false,
		filter,
		[]string{"cn", "mail", "memberOf", "displayName"},
		nil,
	))
	if err != nil {
		s.logr.Error("LDAP search failed", zap.Error(err), zap.String("username", username))
		return nil, nil, fmt.Errorf("user lookup failed")
	}
	if len(sr.Entries) == 0 {
		return nil, nil, fmt.Errorf("user not found in directory")
	}

	entry := sr.Entries[0]
	email := strings.ToLower(entry.GetAttributeValue("mail"))
	if email == "" {
		return nil, nil, fmt.Errorf("user account missing email")
	}
	name := entry.GetAttributeValue("displayName")
	if name == "" {
		name = entry.GetAttributeValue("cn")
	}
	if name == "" {
		name = username
	}
	roles := rolesFromGroups(entry.GetAttributeValues("memberOf"))

	u, err := s.provisionLDAPUser(ctx, email, name, roles)
	if err != nil {
		return nil, nil, err
	}

	s.touchLastLogin(ctx, u.ID)
	pair, err := s.issue(ctx, u, "ldap", deviceInfo)
	if err != nil {
		s.logr.Error("failed to issue tokens", zap.Error(err), zap.String("user_id", u.ID.String()))
		return nil, nil, err
	}

	s.logr.Info("LDAP login successful", zap.String("user_id", u.ID.String()), zap.Strings("roles", u.Roles))
	return pair, userInfoOf(u), nil
}

// provisionLDAPUser upserts the local account. Directory group membership is
// authoritative for roles.
func (s *AuthService) provisionLDAPUser(ctx context.Context, email, name string, roles []string) (*models.User, error) {
	u := &models.User{Email: email, Name: name, Provider: "ldap", Roles: roles}
	_, err := s.db.NewInsert().Model(u).
		On("CONFLICT (email) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("provider = EXCLUDED.provider").
		Set("roles = EXCLUDED.roles").
		Returning("*").
		Exec(ctx)
	if err != nil {
		s.logr.Error("failed to provision LDAP user", zap.Error(err), zap.String("email", email))
		return nil, apperr.Write("provision user", err)
	}
	return u, nil
}

// storeRefreshToken stores the hashed token and keeps at most maxSessions
// live sessions per user, evicting the oldest.
func (s *AuthService) storeRefreshToken(ctx context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time, jti string, deviceInfo string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*models.RefreshToken)(nil)).
			Where("user_id = ? AND expires_at < now()", userID).
			Exec(ctx); err != nil {
			return err
		}

		_, err := tx.NewUpdate().Model((*models.RefreshToken)(nil)).
			Set("revoked = true").
			Where(`id IN (SELECT id FROM app.refresh_tokens
				WHERE user_id = ? AND revoked = false
				ORDER BY created_at DESC OFFSET ?)`, userID, maxSessions-1).
			Exec(ctx)
		if err != nil {
			return err
		}

		rt := models.RefreshToken{
			UserID:     userID,
			JTI:        jti,
			TokenHash:  auth.HashToken(refreshToken),
			DeviceInfo: &deviceInfo,
			CreatedAt:  time.Now().UTC(),
			ExpiresAt:  expiresAt,
		}
		_, err = tx.NewInsert().Model(&rt).Exec(ctx)
		return err
	})
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued with the user's current roles and token version.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, deviceInfo string) (*auth.TokenPair, error) {
	claims, err := s.jwt.VerifyToken(refreshToken, auth.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	var rt models.RefreshToken
	err = s.db.NewSelect().Model(&rt).
		Where("jti = ? AND token_hash = ? AND revoked = false AND expires_at > now()", claims.ID, auth.HashToken(refreshToken)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh token not found or revoked")
	}

	var u models.User
	if err := s.db.NewSelect().Model(&u).Where("id = ?", rt.UserID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("user not found")
	}
	if u.TokenVersion != claims.Version {
		return nil, fmt.Errorf("refresh token revoked")
	}

	if _, err := s.db.NewUpdate().Model((*models.RefreshToken)(nil)).
		Set("revoked = true").
		Where("id = ?", rt.ID).
		Exec(ctx); err != nil {
		return nil, apperr.Write("revoke refresh token", err)
	}

	return s.issue(ctx, &u, claims.AuthMethod, deviceInfo)
}

// Logout ends the session by revoking its refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.jwt.VerifyToken(refreshToken, auth.RefreshToken)
	if err != nil {
		return err
	}
	_, err = s.db.NewUpdate().Model((*models.RefreshToken)(nil)).
		Set("revoked = true").
		Where("jti = ?", claims.ID).
		Exec(ctx)
	return err
}

// RevokeAll bumps the token version so every outstanding token for the user
// stops verifying.
func (s *AuthService) RevokeAll(ctx context.Context, userID string) error {
	_, err := s.db.NewUpdate().Model((*models.User)(nil)).
		Set("token_version = token_version + 1").
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return apperr.Write("revoke sessions", err)
	}
	return nil
}

func (s *AuthService) CheckTokenVersion(ctx context.Context, userID string, tokenVersion int) (bool, error) {
	var version int
	err := s.db.NewSelect().Model((*models.User)(nil)).
		Column("token_version").
		Where("id = ?", userID).
		Scan(ctx, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return version == tokenVersion, nil
}
