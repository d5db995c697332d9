package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `
	id,
	session_id,
	sender_id,
	receiver_id,
	content,
	message_type,
	file_url,
	is_read,
	read_at,
	created_at`

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID,
		&m.SessionID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.MessageType,
		&m.FileURL,
		&m.IsRead,
		&m.ReadAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create appends a message while its session is still accepted or
// completed. The session row is share-locked so a concurrent transition
// waits for the insert (or the insert sees the new status and writes
// nothing). The table's seq column fixes append order; created_at can tie
// under load.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	const query = `
	INSERT INTO messages (
		id,
		session_id,
		sender_id,
		receiver_id,
		content,
		message_type,
		file_url,
		is_read,
		created_at
	)
	SELECT $1::uuid, $2::uuid, $3::uuid, $4::uuid, $5::text, $6::text, $7::text, FALSE, NOW()
	WHERE EXISTS (
		SELECT 1 FROM sessions
		WHERE id = $2::uuid AND status = ANY($8)
		FOR SHARE
	)
	RETURNING created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		message.ID,
		message.SessionID,
		message.SenderID,
		message.ReceiverID,
		message.Content,
		message.MessageType,
		message.FileURL,
		pq.Array(messagingStatuses),
	).Scan(&message.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s no longer accepts messages: %w", message.SessionID, apperrors.ErrStale)
	}
	return err
}

var messagingStatuses = []string{
	string(models.SessionStatusAccepted),
	string(models.SessionStatusCompleted),
}

// GetByID loads a single message
func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1 LIMIT 1`

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
	}
	return message, err
}

// ListBySession returns one page of messages, newest first, and the total count
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, offset, limit int) ([]*models.Message, int, error) {
	var total int
	const countQuery = `SELECT COUNT(*) FROM messages WHERE session_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, sessionID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
	SELECT ` + messageColumns + `
	FROM messages
	WHERE session_id = $1
	ORDER BY seq DESC
	LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, message)
	}
	return messages, total, rows.Err()
}

// MarkRead flags every unread message in the session addressed to receiverID
func (r *MessageRepository) MarkRead(ctx context.Context, sessionID, receiverID uuid.UUID, at time.Time) (int64, error) {
	const query = `
	UPDATE messages
	SET is_read = TRUE, read_at = $3
	WHERE session_id = $1 AND receiver_id = $2 AND is_read = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, sessionID, receiverID, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountUnread counts unread messages in the session addressed to receiverID
func (r *MessageRepository) CountUnread(ctx context.Context, sessionID, receiverID uuid.UUID) (int, error) {
	const query = `
	SELECT COUNT(*)
	FROM messages
	WHERE session_id = $1 AND receiver_id = $2 AND is_read = FALSE
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, sessionID, receiverID).Scan(&count)
	return count, err
}

// Delete removes a message by id
func (r *MessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
