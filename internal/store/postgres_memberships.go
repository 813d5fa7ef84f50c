package store

import (
	"context"
	"errors"
	"time"

	"bisikin/server/internal/errs"
	"bisikin/server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMembershipStore persists the per (group, user) role/status rows and
// enforces the admin-floor invariant inside row-locking transactions.
type PostgresMembershipStore struct {
	pool *pgxpool.Pool
}

const membershipFields = `group_id, user_id, role, status, joined_at, left_at,
	removed_at, added_by, removed_by, last_read_at`

// Upsert inserts a membership or reactivates the single existing row for the
// (group, user) pair. The uniqueness constraint makes re-adding a removed
// member a reactivation, never a duplicate.
func (s *PostgresMembershipStore) Upsert(ctx context.Context, m *models.Membership) error {
	now := time.Now()
	m.JoinedAt = now
	m.LastReadAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO memberships (group_id, user_id, role, status, joined_at, added_by, last_read_at)
		VALUES ($1, $2, $3, 'active', $4, $5, $4)
		ON CONFLICT (group_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			status = 'active',
			joined_at = EXCLUDED.joined_at,
			added_by = EXCLUDED.added_by,
			last_read_at = EXCLUDED.last_read_at,
			left_at = NULL,
			removed_at = NULL,
			removed_by = NULL
	`, m.GroupID, m.UserID, m.Role, m.JoinedAt, m.AddedBy)
	return err
}

func (s *PostgresMembershipStore) Get(ctx context.Context, groupID, userID string) (*models.Membership, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+membershipFields+`
		FROM memberships WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	return scanMembership(row)
}

func (s *PostgresMembershipStore) ListActive(ctx context.Context, groupID string) ([]models.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+membershipFields+`
		FROM memberships WHERE group_id = $1 AND status = 'active'
		ORDER BY joined_at ASC
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *PostgresMembershipStore) ListMembers(ctx context.Context, groupID string) ([]models.MemberWithUser, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.group_id, m.user_id, m.role, m.status, m.joined_at, m.left_at,
		       m.removed_at, m.added_by, m.removed_by, m.last_read_at,
		       u.id, u.username, u.public_key, u.created_at
		FROM memberships m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1 AND m.status = 'active'
		ORDER BY m.joined_at ASC
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.MemberWithUser{}
	for rows.Next() {
		var m models.MemberWithUser
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.Status, &m.JoinedAt, &m.LeftAt,
			&m.RemovedAt, &m.AddedBy, &m.RemovedBy, &m.LastReadAt,
			&m.User.ID, &m.User.Username, &m.User.PublicKey, &m.User.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresMembershipStore) ActiveGroupIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT group_id FROM memberships WHERE user_id = $1 AND status = 'active'
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresMembershipStore) Promote(ctx context.Context, groupID, targetID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE memberships SET role = 'admin'
		WHERE group_id = $1 AND user_id = $2 AND status = 'active'
	`, groupID, targetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("active membership")
	}
	return nil
}

// Demote downgrades an active admin to member. The admin floor is checked
// under row locks so concurrent demote/leave cannot race past it.
func (s *PostgresMembershipStore) Demote(ctx context.Context, groupID, targetID string) error {
	return s.withLockedGroup(ctx, groupID, func(tx pgx.Tx) error {
		target, err := getMembershipTx(ctx, tx, groupID, targetID)
		if err != nil {
			return err
		}
		if !target.IsActiveAdmin() {
			return errs.Validation("target is not an active admin")
		}

		admins, err := countTx(ctx, tx, groupID, "status = 'active' AND role = 'admin'")
		if err != nil {
			return err
		}
		if admins <= 1 {
			return errs.Invariant("group would be left without an active admin")
		}

		_, err = tx.Exec(ctx, `
			UPDATE memberships SET role = 'member' WHERE group_id = $1 AND user_id = $2
		`, groupID, targetID)
		return err
	})
}

func (s *PostgresMembershipStore) Remove(ctx context.Context, groupID, targetID, actorID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE memberships SET status = 'removed', removed_at = $1, removed_by = $2
		WHERE group_id = $3 AND user_id = $4 AND status = 'active'
	`, time.Now(), actorID, groupID, targetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("active membership")
	}
	return nil
}

// Leave tombstones the caller's membership as left. A sole active admin may
// only leave when no other active members remain.
func (s *PostgresMembershipStore) Leave(ctx context.Context, groupID, userID string) error {
	return s.withLockedGroup(ctx, groupID, func(tx pgx.Tx) error {
		m, err := getMembershipTx(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if !m.IsActive() {
			return errs.NotFound("active membership")
		}

		if m.IsActiveAdmin() {
			admins, err := countTx(ctx, tx, groupID, "status = 'active' AND role = 'admin'")
			if err != nil {
				return err
			}
			members, err := countTx(ctx, tx, groupID, "status = 'active'")
			if err != nil {
				return err
			}
			if admins == 1 && members > 1 {
				return errs.Invariant("sole admin cannot leave while other members remain")
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE memberships SET status = 'left', left_at = $1
			WHERE group_id = $2 AND user_id = $3
		`, time.Now(), groupID, userID)
		return err
	})
}

func (s *PostgresMembershipStore) UpdateLastRead(ctx context.Context, groupID, userID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE memberships SET last_read_at = $1
		WHERE group_id = $2 AND user_id = $3 AND status = 'active'
	`, at, groupID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("active membership")
	}
	return nil
}

// withLockedGroup runs fn inside a transaction holding row locks on every
// membership of the group, serializing invariant checks with their mutations.
func (s *PostgresMembershipStore) withLockedGroup(ctx context.Context, groupID string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT user_id FROM memberships WHERE group_id = $1 FOR UPDATE
	`, groupID)
	if err != nil {
		return err
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func getMembershipTx(ctx context.Context, tx pgx.Tx, groupID, userID string) (*models.Membership, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+membershipFields+`
		FROM memberships WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	return scanMembership(row)
}

func countTx(ctx context.Context, tx pgx.Tx, groupID, where string) (int, error) {
	var count int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM memberships WHERE group_id = $1 AND `+where, groupID).Scan(&count)
	return count, err
}

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	err := row.Scan(&m.GroupID, &m.UserID, &m.Role, &m.Status, &m.JoinedAt, &m.LeftAt,
		&m.RemovedAt, &m.AddedBy, &m.RemovedBy, &m.LastReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("membership")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
