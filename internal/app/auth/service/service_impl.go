package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/agile-platform/backend/internal/adapters/transport/http/dto"
	customErrors "github.com/agile-platform/backend/internal/domain/auth/errors"
	"github.com/agile-platform/backend/internal/domain/auth/jwt"
	"github.com/agile-platform/backend/internal/domain/auth/model"
	repo "github.com/agile-platform/backend/internal/domain/auth/repo"
	"github.com/agile-platform/backend/internal/infra/config"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	errEmailTaken = customErrors.WithDetails(customErrors.ErrAlreadyExists, "Email already registered",
		customErrors.FieldError{Field: "email", Message: "this email is already registered"})
	errLoginFailed = customErrors.WithDetails(customErrors.ErrInvalidCredentials, "Invalid credentials",
		customErrors.FieldError{Field: "general", Message: "email or password is incorrect"})
	errUserNotFound = customErrors.WithDetails(customErrors.ErrNotFound, "User not found")
	errWrongCurrent = customErrors.WithDetails(customErrors.ErrInvalidPassword, "Invalid current password",
		customErrors.FieldError{Field: "currentPassword", Message: "current password is incorrect"})
	errSamePassword = customErrors.WithDetails(customErrors.ErrSamePassword, "New password cannot be the same as current password",
		customErrors.FieldError{Field: "newPassword", Message: "new password must differ from the current one"})
)

// PasswordHasher is satisfied by credential.Hasher.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
	NeedsRehash(hash string) bool
}

// decoyPassword is hashed once and verified against when a login names no
// usable account, so both failure paths pay for one hash comparison.
const decoyPassword = "decoy-password-for-missing-accounts"

type authService struct {
	userRepo repo.UserRepo
	cache    repo.ProfileCache
	hasher   PasswordHasher
	jwtUtil  jwt.JWTUtil
	cfg      *config.Config
	v        *validator.Validate
	now      func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

type Service interface {
	Register(context.Context, dto.RegisterDTO) (model.AuthResult, error)
	Login(context.Context, dto.LoginDTO) (model.AuthResult, error)
	Profile(context.Context, uuid.UUID) (model.PublicUser, error)
	ChangePassword(context.Context, uuid.UUID, dto.ChangePasswordDTO) error
}

type Option func(*authService)

// WithClock overrides the clock used for user timestamps and token TTLs.
func WithClock(now func() time.Time) Option {
	return func(a *authService) { a.now = now }
}

func New(
	ur repo.UserRepo,
	cache repo.ProfileCache,
	hasher PasswordHasher,
	jm jwt.JWTUtil,
	cfg *config.Config,
	v *validator.Validate,
	opts ...Option,
) Service {
	if cache == nil {
		cache = noopCache{}
	}
	a := &authService{
		userRepo: ur, cache: cache, hasher: hasher, jwtUtil: jm, cfg: cfg, v: v, now: time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *authService) Register(ctx context.Context, in dto.RegisterDTO) (model.AuthResult, error) {
	if err := dto.Validate(a.v, in); err != nil {
		return model.AuthResult{}, err
	}
	email := normalizeEmail(in.Email)

	_, err := a.userRepo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return model.AuthResult{}, errEmailTaken
	case !errors.Is(err, customErrors.ErrNotFound):
		return model.AuthResult{}, customErrors.WrapInternal(err, "Register")
	}

	passwordHash, err := a.hasher.Hash(in.Password)
	if err != nil {
		return model.AuthResult{}, customErrors.WrapInternal(err, "Register")
	}

	now := a.now().UTC()
	user := model.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: passwordHash,
		Role:         model.RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err = a.userRepo.CreateUser(ctx, user); err != nil {
		// a concurrent registration can still win the race past the lookup above
		if errors.Is(err, customErrors.ErrAlreadyExists) {
			return model.AuthResult{}, errEmailTaken
		}
		return model.AuthResult{}, customErrors.WrapInternal(err, "Register")
	}

	return a.issue(user)
}

func (a *authService) Login(ctx context.Context, in dto.LoginDTO) (model.AuthResult, error) {
	if err := dto.Validate(a.v, in); err != nil {
		return model.AuthResult{}, err
	}

	user, err := a.userRepo.GetUserByEmail(ctx, normalizeEmail(in.Email))
	switch {
	case errors.Is(err, customErrors.ErrNotFound):
		a.verifyDecoy(in.Password)
		return model.AuthResult{}, errLoginFailed
	case err != nil:
		return model.AuthResult{}, customErrors.WrapInternal(err, "Login")
	}

	if user.PasswordHash == "" {
		a.verifyDecoy(in.Password)
		return model.AuthResult{}, errLoginFailed
	}
	if !a.hasher.Verify(in.Password, user.PasswordHash) {
		return model.AuthResult{}, errLoginFailed
	}
	a.rehash(ctx, &user, in.Password)

	return a.issue(user)
}

func (a *authService) verifyDecoy(password string) {
	a.decoyOnce.Do(func() {
		a.decoyHash, _ = a.hasher.Hash(decoyPassword)
	})
	_ = a.hasher.Verify(password, a.decoyHash)
}

// rehash upgrades a stored hash made with an outdated algorithm or cost.
// It runs after a successful login and never fails it.
func (a *authService) rehash(ctx context.Context, user *model.User, password string) {
	if !a.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	upgraded, err := a.hasher.Hash(password)
	if err != nil {
		return
	}
	now := a.now().UTC()
	if err := a.userRepo.UpdatePassword(ctx, user.ID, upgraded, now); err != nil {
		return
	}
	user.PasswordHash, user.UpdatedAt = upgraded, now
	_ = a.cache.Delete(ctx, user.ID)
}

func (a *authService) Profile(ctx context.Context, id uuid.UUID) (model.PublicUser, error) {
	if cached, ok, err := a.cache.Get(ctx, id); err == nil && ok {
		return cached, nil
	}

	user, err := a.userRepo.GetUserByID(ctx, id)
	switch {
	case errors.Is(err, customErrors.ErrNotFound):
		return model.PublicUser{}, errUserNotFound
	case err != nil:
		return model.PublicUser{}, customErrors.WrapInternal(err, "Profile")
	}

	pub := user.Public()
	_ = a.cache.Set(ctx, pub, a.cfg.ProfileCacheTTL)
	return pub, nil
}

func (a *authService) ChangePassword(ctx context.Context, id uuid.UUID, in dto.ChangePasswordDTO) error {
	if err := dto.Validate(a.v, in); err != nil {
		return err
	}

	user, err := a.userRepo.GetUserByID(ctx, id)
	switch {
	case errors.Is(err, customErrors.ErrNotFound):
		return errUserNotFound
	case err != nil:
		return customErrors.WrapInternal(err, "ChangePassword")
	}
	if user.PasswordHash == "" {
		return errUserNotFound
	}

	if !a.hasher.Verify(in.CurrentPassword, user.PasswordHash) {
		return errWrongCurrent
	}
	if a.hasher.Verify(in.NewPassword, user.PasswordHash) {
		return errSamePassword
	}

	passwordHash, err := a.hasher.Hash(in.NewPassword)
	if err != nil {
		return customErrors.WrapInternal(err, "ChangePassword")
	}
	if err := a.userRepo.UpdatePassword(ctx, id, passwordHash, a.now().UTC()); err != nil {
		if errors.Is(err, customErrors.ErrNotFound) {
			return errUserNotFound
		}
		return customErrors.WrapInternal(err, "ChangePassword")
	}

	_ = a.cache.Delete(ctx, id)
	return nil
}

func (a *authService) issue(user model.User) (model.AuthResult, error) {
	id := user.Identity()

	at, atExp, _, err := a.jwtUtil.GenerateAccessToken(id)
	if err != nil {
		return model.AuthResult{}, customErrors.WrapInternal(err, "GenerateAccessToken")
	}
	rt, rtExp, _, err := a.jwtUtil.GenerateRefreshToken(id)
	if err != nil {
		return model.AuthResult{}, customErrors.WrapInternal(err, "GenerateRefreshToken")
	}

	now := a.now()
	return model.AuthResult{
		User: user.Public(),
		Tokens: model.TokenPair{
			AccessToken:  at,
			RefreshToken: rt,
			AccessTTL:    atExp.Sub(now),
			RefreshTTL:   rtExp.Sub(now),
		},
	}, nil
}

type noopCache struct{}

func (noopCache) Get(context.Context, uuid.UUID) (model.PublicUser, bool, error) {
	return model.PublicUser{}, false, nil
}
func (noopCache) Set(context.Context, model.PublicUser, time.Duration) error { return nil }
func (noopCache) Delete(context.Context, uuid.UUID) error                    { return nil }
