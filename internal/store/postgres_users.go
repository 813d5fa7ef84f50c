package store

import (
	"context"
	"errors"
	"time"

	"bisikin/server/internal/errs"
	"bisikin/server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUserStore is the identity directory backed by the users table.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresUserStore) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, public_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Username, user.Password, user.PublicKey, user.CreatedAt, user.UpdatedAt)
	return err
}

func (s *PostgresUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.get(ctx, "id = $1", id)
}

func (s *PostgresUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.get(ctx, "username = $1", username)
}

func (s *PostgresUserStore) get(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, public_key, created_at, updated_at
		FROM users WHERE `+where,
		arg).Scan(&user.ID, &user.Username, &user.Password, &user.PublicKey, &user.CreatedAt, &user.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
