package models

import (
	"fmt"
	"time"

	apperrors "AlertDesk/pkg/errors"

	"github.com/golang-jwt/jwt"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenPair is what POST /token answers with.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenIssuer signs and verifies HS256 access/refresh tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (t *TokenIssuer) sign(id Identity, tokenType string, ttl time.Duration) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":         id.UserID,
		"organization_id": id.OrganizationID,
		"role":            id.Role,
		"token_type":      tokenType,
		"iat":             now.Unix(),
		"exp":             now.Add(ttl).Unix(),
	})
	s, err := token.SignedString(t.secret)
	if err != nil {
		return "", apperrors.Wrap(err, "signing authentication token")
	}
	return s, nil
}

// Issue returns a fresh access/refresh pair for user.
func (t *TokenIssuer) Issue(user *User) (*TokenPair, error) {
	id := user.Identity()
	access, err := t.sign(id, TokenTypeAccess, t.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := t.sign(id, TokenTypeRefresh, t.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (t *TokenIssuer) Refresh(refresh string) (string, error) {
	id, err := t.Verify(refresh, TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	return t.sign(id, TokenTypeAccess, t.accessTTL)
}

// Verify parses tokenString and returns the identity it carries.
func (t *TokenIssuer) Verify(tokenString, tokenType string) (Identity, error) {
	keyLookupFn := func(token *jwt.Token) (interface{}, error) {
		// Check for expected signing method.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}
	token, err := jwt.Parse(tokenString, keyLookupFn)
	if err != nil {
		return Identity{}, apperrors.WithKindf(apperrors.KindUnauthorized, "invalid token: %s", err.Error())
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, apperrors.WithKind(apperrors.KindUnauthorized, "invalid claims type")
	}
	// exp 必须存在，jwt v3 对缺失的 exp 不报错
	if _, ok := claims["exp"]; !ok {
		return Identity{}, apperrors.WithKind(apperrors.KindUnauthorized, "token expiration is required")
	}
	if tt, _ := claims["token_type"].(string); tt != tokenType {
		return Identity{}, apperrors.WithKind(apperrors.KindUnauthorized, "token has wrong type")
	}

	// MapClaims decodes numbers as float64
	uid, _ := claims["user_id"].(float64)
	oid, _ := claims["organization_id"].(float64)
	role, _ := claims["role"].(string)
	if uid <= 0 {
		return Identity{}, apperrors.WithKind(apperrors.KindUnauthorized, "token has no user")
	}
	return Identity{UserID: uint(uid), OrganizationID: uint(oid), Role: role}, nil
}
