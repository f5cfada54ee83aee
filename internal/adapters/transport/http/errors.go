package http

import (
	"net/http"

	authErrors "github.com/agile-platform/backend/internal/domain/auth/errors"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Error   string                  `json:"error"`
	Details []authErrors.FieldError `json:"details,omitempty"`
}

func handleError(c *gin.Context, err error) {
	details := authErrors.Details(err)
	switch {
	case authErrors.IsInvalidArgument(err):
		c.JSON(http.StatusBadRequest, errorBody{Error: authErrors.Message(err, "Validation failed"), Details: details})
	case authErrors.IsInvalidPassword(err), authErrors.IsSamePassword(err):
		c.JSON(http.StatusBadRequest, errorBody{Error: authErrors.Message(err, "Invalid password"), Details: details})
	case authErrors.IsInvalidCredentials(err):
		c.JSON(http.StatusUnauthorized, errorBody{Error: authErrors.Message(err, "Invalid credentials"), Details: details})
	case authErrors.IsInvalidToken(err):
		c.JSON(http.StatusUnauthorized, errorBody{Error: "Invalid or expired token"})
	case authErrors.IsAlreadyExists(err):
		c.JSON(http.StatusConflict, errorBody{Error: authErrors.Message(err, "Already exists"), Details: details})
	case authErrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, errorBody{Error: authErrors.Message(err, "Not found")})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "Internal server error"})
	}
}
