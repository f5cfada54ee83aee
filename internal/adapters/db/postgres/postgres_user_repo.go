package postgres

import (
	"context"
	"errors"
	"time"

	customErrors "github.com/agile-platform/backend/internal/domain/auth/errors"
	"github.com/agile-platform/backend/internal/domain/auth/model"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgresUserRepo stores accounts in the users table through gorm.
type PostgresUserRepo struct {
	db *gorm.DB
}

func NewPostgresUserRepo(db *gorm.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (p *PostgresUserRepo) CreateUser(ctx context.Context, user model.User) (uuid.UUID, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = model.RoleMember
	}
	res := p.db.WithContext(ctx).Create(&user)
	if err := res.Error; err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, customErrors.ErrAlreadyExists
		}
		return uuid.Nil, customErrors.WrapInternal(err, "CreateUser")
	}
	return user.ID, nil
}

// findOne loads the single user matching cond. Missing rows map to
// ErrNotFound; anything else is wrapped as internal under op.
func (p *PostgresUserRepo) findOne(ctx context.Context, op, cond string, arg any) (model.User, error) {
	var u model.User
	err := p.db.WithContext(ctx).Where(cond, arg).Take(&u).Error
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.User{}, customErrors.ErrNotFound
	default:
		return model.User{}, customErrors.WrapInternal(err, op)
	}
}

func (p *PostgresUserRepo) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return p.findOne(ctx, "GetUserByEmail", "email = ?", email)
}

func (p *PostgresUserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return p.findOne(ctx, "GetUserByID", "id = ?", id)
}

func (p *PostgresUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, updatedAt time.Time) error {
	res := p.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash": passwordHash,
			"updated_at":    updatedAt,
		})
	if err := res.Error; err != nil {
		return customErrors.WrapInternal(err, "UpdatePassword")
	}
	if res.RowsAffected == 0 {
		return customErrors.ErrNotFound
	}

	return nil
}
