package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/config"
)

// Access tokens are HS256 JWTs signed with the auth backend's shared secret.
const (
	authenticatedRole = "authenticated"
	mintedTokenTTL    = time.Hour
)

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	errMissingUser   = errors.New("user id is required")
)

// MintAccessToken signs a token shaped like the auth backend's. Only local
// tooling and tests mint tokens.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrMissingSecret
	case payload.UserID == uuid.Nil:
		return "", errMissingUser
	}

	claims := AccessTokenClaims{
		Email:     payload.Email,
		Role:      authenticatedRole,
		SessionID: strings.TrimSpace(payload.SessionID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.UserID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(mintedTokenTTL)),
		},
	}
	if claims.SessionID == "" {
		claims.SessionID = uuid.NewString()
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies raw and returns its claims. Expiry is mandatory;
// issuer and audience are checked when configured. The subject must be a
// user id.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	claims := &AccessTokenClaims{}
	secret := []byte(cfg.Secret)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	if _, err := jwt.ParseWithClaims(raw, claims, keyFunc, parserOptions(cfg)...); err != nil {
		return nil, err
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

func parserOptions(cfg config.JWTConfig) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return opts
}
