package auth

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"medops-bknd/internal/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

var ErrWrongTokenKind = errors.New("wrong token kind")

// Claims is the payload of both access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Kind       TokenKind `json:"typ"`
	Version    int       `json:"ver"`
	AuthMethod string    `json:"auth_method"`
	Email      string    `json:"email,omitempty"`
	Roles      []string  `json:"roles,omitempty"`
}

// Session converts verified claims into the request session.
func (c *Claims) Session() *session.Session {
	return &session.Session{
		UserID:     c.Subject,
		Email:      c.Email,
		Roles:      c.Roles,
		AuthMethod: c.AuthMethod,
	}
}

// Subject is what a token pair is issued for.
type Subject struct {
	UserID       string
	Email        string
	TokenVersion int
	AuthMethod   string
	Roles        []string
}

type JWTManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	JTI          string
	RefreshJTI   string
}

func NewJWTManager(privatePath, publicPath, issuer string) (*JWTManager, error) {
	privPem, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPem)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubPem, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPem)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return NewJWTManagerFromKeys(privKey, pubKey, issuer), nil
}

func NewJWTManagerFromKeys(priv *rsa.PrivateKey, pub *rsa.PublicKey, issuer string) *JWTManager {
	return &JWTManager{privateKey: priv, publicKey: pub, issuer: issuer}
}

func (m *JWTManager) sign(sub Subject, kind TokenKind, ttl time.Duration, jti string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		Kind:       kind,
		Version:    sub.TokenVersion,
		AuthMethod: sub.AuthMethod,
		Email:      sub.Email,
		Roles:      sub.Roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenStr, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenStr, exp, nil
}

// GenerateTokenPair creates an access and a refresh token with distinct ids.
func (m *JWTManager) GenerateTokenPair(sub Subject, accessTTL, refreshTTL time.Duration) (*TokenPair, error) {
	jti := uuid.New().String()
	accessToken, accessExp, err := m.sign(sub, AccessToken, accessTTL, jti)
	if err != nil {
		return nil, err
	}

	refreshJTI := uuid.New().String()
	refreshToken, refreshExp, err := m.sign(sub, RefreshToken, refreshTTL, refreshJTI)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		JTI:          jti,
		RefreshJTI:   refreshJTI,
	}, nil
}

// VerifyToken checks the RS256 signature, issuer, expiry and token kind.
func (m *JWTManager) VerifyToken(tokenStr string, kind TokenKind) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodRS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.publicKey, nil
	}, jwt.WithLeeway(5*time.Second), jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongTokenKind, claims.Kind, kind)
	}
	return claims, nil
}

// HashToken produces SHA256 hex of the token for storage
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
