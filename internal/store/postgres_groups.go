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

// PostgresGroupStore persists group summary records.
type PostgresGroupStore struct {
	pool *pgxpool.Pool
}

const groupFields = `id, name, created_by, member_count, admin_count,
	last_message_at, last_message_preview, created_at, updated_at`

func (s *PostgresGroupStore) Create(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	now := time.Now()
	group.CreatedAt = now
	group.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO groups (id, name, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, group.ID, group.Name, group.CreatedBy, group.CreatedAt, group.UpdatedAt)
	return err
}

func (s *PostgresGroupStore) Get(ctx context.Context, id string) (*models.Group, error) {
	var group models.Group
	err := s.pool.QueryRow(ctx, `
		SELECT `+groupFields+` FROM groups WHERE id = $1
	`, id).Scan(&group.ID, &group.Name, &group.CreatedBy, &group.MemberCount, &group.AdminCount,
		&group.LastMessageAt, &group.LastMessagePreview, &group.CreatedAt, &group.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("group")
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *PostgresGroupStore) Rename(ctx context.Context, id, name string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE groups SET name = $1, updated_at = $2 WHERE id = $3
	`, name, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("group")
	}
	return nil
}

func (s *PostgresGroupStore) SetLastMessage(ctx context.Context, id string, at time.Time, preview string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE groups SET last_message_at = $1, last_message_preview = $2, updated_at = $1
		WHERE id = $3
	`, at, preview, id)
	return err
}

// Recount refreshes the denormalized counters from a live scan of active
// memberships. Called after every membership mutation, never incremented.
func (s *PostgresGroupStore) Recount(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE groups SET
			member_count = (SELECT COUNT(*) FROM memberships
				WHERE group_id = $1 AND status = 'active'),
			admin_count = (SELECT COUNT(*) FROM memberships
				WHERE group_id = $1 AND status = 'active' AND role = 'admin'),
			updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}

func (s *PostgresGroupStore) ListForUser(ctx context.Context, userID string) ([]models.Group, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+prefixGroupFields("g")+`
		FROM groups g
		INNER JOIN memberships m ON m.group_id = g.id
		WHERE m.user_id = $1 AND m.status = 'active'
		ORDER BY COALESCE(g.last_message_at, g.created_at) DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []models.Group{}
	for rows.Next() {
		var group models.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.CreatedBy, &group.MemberCount,
			&group.AdminCount, &group.LastMessageAt, &group.LastMessagePreview,
			&group.CreatedAt, &group.UpdatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func prefixGroupFields(alias string) string {
	return alias + ".id, " + alias + ".name, " + alias + ".created_by, " +
		alias + ".member_count, " + alias + ".admin_count, " +
		alias + ".last_message_at, " + alias + ".last_message_preview, " +
		alias + ".created_at, " + alias + ".updated_at"
}
