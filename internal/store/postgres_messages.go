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

// PostgresMessageStore persists both message variants in one polymorphic
// table keyed by conversation_type.
type PostgresMessageStore struct {
	pool *pgxpool.Pool
}

const directColumns = `id, sender_id, receiver_id, ciphertext, iv, key_for_receiver, key_for_sender,
	reply_to, is_edited, edited_at, is_unsent, is_read, deleted_for, created_at`

const groupColumns = `id, sender_id, group_id, content, type, system_action, system_meta,
	reply_to, is_edited, edited_at, is_unsent, deleted_for, created_at`

func (s *PostgresMessageStore) CreateDirect(ctx context.Context, msg *models.DirectMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()
	if msg.DeletedFor == nil {
		msg.DeletedFor = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_type, sender_id, receiver_id,
			ciphertext, iv, key_for_receiver, key_for_sender, reply_to, created_at)
		VALUES ($1, 'direct', $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Ciphertext, msg.IV,
		msg.KeyForReceiver, msg.KeyForSender, msg.ReplyTo, msg.CreatedAt)
	return err
}

func (s *PostgresMessageStore) CreateGroup(ctx context.Context, msg *models.GroupMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()
	if msg.Type == "" {
		msg.Type = models.GroupMessageUser
	}
	if msg.DeletedFor == nil {
		msg.DeletedFor = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_type, sender_id, group_id,
			content, type, system_action, system_meta, reply_to, created_at)
		VALUES ($1, 'group', $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.SenderID, msg.GroupID, msg.Content, msg.Type,
		msg.Action, msg.ActionMeta, msg.ReplyTo, msg.CreatedAt)
	return err
}

func (s *PostgresMessageStore) GetDirect(ctx context.Context, id string) (*models.DirectMessage, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+directColumns+`
		FROM messages WHERE id = $1 AND conversation_type = 'direct'
	`, id)
	return scanDirect(row)
}

func (s *PostgresMessageStore) GetGroup(ctx context.Context, id string) (*models.GroupMessage, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+groupColumns+`
		FROM messages WHERE id = $1 AND conversation_type = 'group'
	`, id)
	return scanGroup(row)
}

func (s *PostgresMessageStore) UpdateDirect(ctx context.Context, msg *models.DirectMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET ciphertext = $1, iv = $2, key_for_receiver = $3, key_for_sender = $4,
			is_edited = $5, edited_at = $6, is_unsent = $7
		WHERE id = $8 AND conversation_type = 'direct'
	`, msg.Ciphertext, msg.IV, msg.KeyForReceiver, msg.KeyForSender,
		msg.IsEdited, msg.EditedAt, msg.IsUnsent, msg.ID)
	return err
}

func (s *PostgresMessageStore) UpdateGroup(ctx context.Context, msg *models.GroupMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET content = $1, is_edited = $2, edited_at = $3, is_unsent = $4
		WHERE id = $5 AND conversation_type = 'group'
	`, msg.Content, msg.IsEdited, msg.EditedAt, msg.IsUnsent, msg.ID)
	return err
}

func (s *PostgresMessageStore) AddDeletedFor(ctx context.Context, messageID, viewerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET deleted_for = array_append(deleted_for, $1)
		WHERE id = $2 AND NOT ($1 = ANY(deleted_for))
	`, viewerID, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Already deleted for this viewer, or the message is gone. The first
		// case is an idempotent no-op; check for the second.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, messageID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return errs.NotFound("message")
		}
	}
	return nil
}

func (s *PostgresMessageStore) ListDirect(ctx context.Context, userID, peerID string, limit, offset int) ([]models.DirectMessage, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_type = 'direct'
		  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND NOT ($1 = ANY(deleted_for))
	`, userID, peerID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+directColumns+`
		FROM messages
		WHERE conversation_type = 'direct'
		  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND NOT ($1 = ANY(deleted_for))
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, userID, peerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := []models.DirectMessage{}
	for rows.Next() {
		msg, err := scanDirect(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *msg)
	}
	return messages, total, rows.Err()
}

func (s *PostgresMessageStore) ListGroup(ctx context.Context, groupID, viewerID string, limit, offset int) ([]models.GroupMessage, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_type = 'group' AND group_id = $1 AND NOT ($2 = ANY(deleted_for))
	`, groupID, viewerID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+groupColumns+`
		FROM messages
		WHERE conversation_type = 'group' AND group_id = $1 AND NOT ($2 = ANY(deleted_for))
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, groupID, viewerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := []models.GroupMessage{}
	for rows.Next() {
		msg, err := scanGroup(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *msg)
	}
	return messages, total, rows.Err()
}

func (s *PostgresMessageStore) MarkDirectRead(ctx context.Context, userID, peerID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = true
		WHERE conversation_type = 'direct' AND receiver_id = $1 AND sender_id = $2 AND is_read = false
	`, userID, peerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresMessageStore) UnreadDirectCount(ctx context.Context, userID, peerID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_type = 'direct' AND receiver_id = $1 AND sender_id = $2
		  AND is_read = false AND NOT ($1 = ANY(deleted_for))
	`, userID, peerID).Scan(&count)
	return count, err
}

func (s *PostgresMessageStore) UnreadGroupCount(ctx context.Context, groupID, viewerID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_type = 'group' AND group_id = $1 AND type = 'user'
		  AND sender_id != $2 AND created_at > $3 AND NOT ($2 = ANY(deleted_for))
	`, groupID, viewerID, since).Scan(&count)
	return count, err
}

func (s *PostgresMessageStore) DirectConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		WITH peers AS (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer_id,
			       MAX(created_at) AS last_at
			FROM messages
			WHERE conversation_type = 'direct'
			  AND (sender_id = $1 OR receiver_id = $1)
			  AND NOT ($1 = ANY(deleted_for))
			GROUP BY 1
		)
		SELECT p.peer_id, u.username, p.last_at,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.conversation_type = 'direct' AND m.receiver_id = $1 AND m.sender_id = p.peer_id
			   AND m.is_read = false AND NOT ($1 = ANY(m.deleted_for))) AS unread
		FROM peers p
		INNER JOIN users u ON u.id = p.peer_id
		ORDER BY p.last_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var s models.ConversationSummary
		s.Type = models.ConversationDirect
		if err := rows.Scan(&s.PeerID, &s.PeerUsername, &s.LastMessageAt, &s.UnreadCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func scanDirect(row pgx.Row) (*models.DirectMessage, error) {
	var msg models.DirectMessage
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Ciphertext, &msg.IV,
		&msg.KeyForReceiver, &msg.KeyForSender, &msg.ReplyTo, &msg.IsEdited, &msg.EditedAt,
		&msg.IsUnsent, &msg.IsRead, &msg.DeletedFor, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("message")
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func scanGroup(row pgx.Row) (*models.GroupMessage, error) {
	var msg models.GroupMessage
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.GroupID, &msg.Content, &msg.Type,
		&msg.Action, &msg.ActionMeta, &msg.ReplyTo, &msg.IsEdited, &msg.EditedAt,
		&msg.IsUnsent, &msg.DeletedFor, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("message")
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
