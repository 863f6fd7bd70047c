package auth

import (
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.AccountRole
	// JTI doubles as the Redis session id; a fresh one is generated when empty.
	JTI string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID         `json:"user_id"`
	Role   enums.AccountRole `json:"role"`
	jwt.RegisteredClaims
}
