package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID    uuid.UUID
	Email     string
	SessionID string
}

// AccessTokenClaims mirrors the access tokens issued by the auth backend.
// The subject is the user id.
type AccessTokenClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessTokenClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject %q: %w", c.Subject, err)
	}
	return id, nil
}
