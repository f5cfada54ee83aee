package middleware

import (
	"net/http"
	"strings"

	"github.com/agile-platform/backend/internal/domain/auth/jwt"
	"github.com/agile-platform/backend/internal/domain/auth/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const identityKey = "auth.identity"

// AccessVerifier is satisfied by the JWT utility.
type AccessVerifier interface {
	ValidateAccessToken(token string) (jwt.AccessClaims, error)
}

// Authenticate requires a valid bearer access token and stores the caller's
// identity on the context.
func Authenticate(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}

		claims, err := verifier.ValidateAccessToken(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		uid, err := uuid.Parse(claims.UserID)
		if err != nil || !claims.Role.Valid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(identityKey, model.Identity{UserID: uid, Email: claims.Email, Role: claims.Role})
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}
