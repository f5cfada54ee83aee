package repo

import (
	"context"
	"github.com/agile-platform/backend/internal/domain/auth/model"
	"github.com/google/uuid"
	"time"
)

type UserRepo interface {
	CreateUser(ctx context.Context, u model.User) (uuid.UUID, error)

	GetUserByEmail(ctx context.Context, email string) (model.User, error)

	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)

	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, updatedAt time.Time) error
}

// ProfileCache holds public user projections keyed by user ID.
// A miss is reported as ok == false with a nil error.
type ProfileCache interface {
	Get(ctx context.Context, id uuid.UUID) (user model.PublicUser, ok bool, err error)

	Set(ctx context.Context, user model.PublicUser, ttl time.Duration) error

	Delete(ctx context.Context, id uuid.UUID) error
}
