package http

import (
	"net/http"

	"github.com/agile-platform/backend/internal/adapters/transport/http/dto"
	"github.com/agile-platform/backend/internal/adapters/transport/http/middleware"
	appsvc "github.com/agile-platform/backend/internal/app/auth/service"
	authErrors "github.com/agile-platform/backend/internal/domain/auth/errors"
	"github.com/agile-platform/backend/internal/domain/auth/model"
	lg "github.com/agile-platform/backend/internal/infra/log"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Request is the typed view of an inbound call, built once per request.
type Request[T any] struct {
	Identity      model.Identity
	Authenticated bool
	Body          T
}

var errMalformedBody = authErrors.WithDetails(authErrors.ErrInvalidArgument, "Validation failed",
	authErrors.FieldError{Field: "body", Message: "request body must be valid JSON"})

func newRequest[T any](c *gin.Context) Request[T] {
	id, ok := middleware.IdentityFrom(c)
	return Request[T]{Identity: id, Authenticated: ok}
}

func bindJSON[T any](c *gin.Context) (Request[T], bool) {
	req := newRequest[T](c)
	if err := c.ShouldBindJSON(&req.Body); err != nil {
		handleError(c, errMalformedBody)
		return req, false
	}
	return req, true
}

type authResponse struct {
	Message      string           `json:"message"`
	User         model.PublicUser `json:"user"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
}

type AuthHandler struct {
	svc appsvc.Service
	log *zap.Logger
}

func NewAuthHandler(svc appsvc.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log}
}

func (h *AuthHandler) Register(c *gin.Context) {
	req, ok := bindJSON[dto.RegisterDTO](c)
	if !ok {
		return
	}
	h.log.Info("/register", lg.Email(req.Body.Email))

	res, err := h.svc.Register(c.Request.Context(), req.Body)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, authResponse{
		Message:      "User registered successfully",
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	req, ok := bindJSON[dto.LoginDTO](c)
	if !ok {
		return
	}
	h.log.Info("/login", lg.Email(req.Body.Email))

	res, err := h.svc.Login(c.Request.Context(), req.Body)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, authResponse{
		Message:      "Login successful",
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	})
}

func (h *AuthHandler) Profile(c *gin.Context) {
	req := newRequest[struct{}](c)
	if !req.Authenticated {
		c.JSON(http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	user, err := h.svc.Profile(c.Request.Context(), req.Identity.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	req, ok := bindJSON[dto.ChangePasswordDTO](c)
	if !ok {
		return
	}
	if !req.Authenticated {
		c.JSON(http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), req.Identity.UserID, req.Body); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}
