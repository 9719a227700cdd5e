package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/linemk/tolo-delivery/internal/domain/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrPhoneTaken      = errors.New("phone already taken")
	ErrExternalIDTaken = errors.New("external id already taken")
)

const (
	// код unique_violation в Postgres
	uniqueViolation = "23505"
	// уникальный индекс по external_id из миграции 000001
	externalIDIndex = "users_external_id_idx"
)

type UserStorage interface {
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	AttachExternalID(ctx context.Context, id int64, externalID int64, displayName string) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *userRepository {
	return &userRepository{db: db}
}

const selectUser = "SELECT id, phone, pass_hash, external_id, display_name, created_at FROM users"

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var externalID sql.NullInt64
	var displayName sql.NullString
	if err := row.Scan(&user.ID, &user.Phone, &user.PassHash, &externalID, &displayName, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if externalID.Valid {
		id := externalID.Int64
		user.ExternalID = &id
	}
	user.DisplayName = displayName.String
	return user, nil
}

// получение пользователя по телефону
func (r *userRepository) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+" WHERE phone = $1", phone))
}

func (r *userRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+" WHERE id = $1", id))
}

// получение пользователя по Telegram ID
func (r *userRepository) GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+" WHERE external_id = $1", externalID))
}

// CreateUser вставляет пользователя; занятый телефон -> ErrPhoneTaken, занятый Telegram ID -> ErrExternalIDTaken
func (r *userRepository) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	var displayName sql.NullString
	if user.DisplayName != "" {
		displayName = sql.NullString{String: user.DisplayName, Valid: true}
	}
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO users (phone, pass_hash, external_id, display_name) VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		user.Phone, user.PassHash, user.ExternalID, displayName,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, uniqueError(err)
	}
	return user, nil
}

// AttachExternalID привязывает Telegram ID только если он ещё не задан.
// Telegram ID, уже привязанный к другому пользователю, -> ErrExternalIDTaken
func (r *userRepository) AttachExternalID(ctx context.Context, id int64, externalID int64, displayName string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET external_id = $2, display_name = COALESCE(NULLIF($3, ''), display_name)
		 WHERE id = $1 AND external_id IS NULL`,
		id, externalID, displayName,
	)
	if err != nil {
		return uniqueError(err)
	}
	return nil
}

// uniqueError различает нарушения уникальности по имени ограничения
func uniqueError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	if pqErr.Constraint == externalIDIndex {
		return ErrExternalIDTaken
	}
	return ErrPhoneTaken
}
