package security

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenType is the "typ" claim of backoffice access tokens.
const AccessTokenType = "access"

// AdminRole is required to manage service links.
const AdminRole = "admin"

// ErrNotAdmin is returned for valid tokens that lack the admin role.
var ErrNotAdmin = errors.New("token does not carry the admin role")

// AdminClaims are the claims of a backoffice access token.
type AdminClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	TokenType string `json:"typ"`
	Role      string `json:"role"`
}

// AdminTokenVerifier validates RS256 backoffice access tokens.
type AdminTokenVerifier struct {
	publicKey *rsa.PublicKey
	issuer    string
}

// NewAdminTokenVerifier creates a verifier. An empty issuer skips the issuer check.
func NewAdminTokenVerifier(publicKey *rsa.PublicKey, issuer string) *AdminTokenVerifier {
	return &AdminTokenVerifier{publicKey: publicKey, issuer: issuer}
}

// Verify parses tokenString and checks signature, expiry, type and role.
func (v *AdminTokenVerifier) Verify(tokenString string) (*AdminClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&AdminClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.publicKey, nil
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != AccessTokenType {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Role != AdminRole {
		return nil, ErrNotAdmin
	}
	return claims, nil
}
