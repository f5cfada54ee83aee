package jwt

import (
	"github.com/agile-platform/backend/internal/domain/auth/model"
	"github.com/golang-jwt/jwt/v5"
	"time"
)

// IdentityClaims is the payload shared by access and refresh tokens.
type IdentityClaims struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
}

type AccessClaims struct {
	jwt.RegisteredClaims
	IdentityClaims
}

type RefreshClaims struct {
	jwt.RegisteredClaims
	IdentityClaims
}

type JWTUtil interface {
	GenerateAccessToken(id model.Identity) (token string, exp time.Time, jti string, err error)
	GenerateRefreshToken(id model.Identity) (token string, exp time.Time, jti string, err error)
	ValidateAccessToken(token string) (claims AccessClaims, err error)
	ValidateRefreshToken(token string) (claims RefreshClaims, err error)
}
