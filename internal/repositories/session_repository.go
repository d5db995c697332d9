package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id,
	mentor_id,
	mentee_id,
	title,
	description,
	session_type,
	session_mode,
	max_participants,
	status,
	scheduled_date,
	duration,
	amount,
	accepted_at,
	completed_at,
	cancelled_at,
	cancelled_by,
	cancellation_reason,
	rating,
	feedback,
	created_at,
	updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var rating sql.NullInt64
	err := row.Scan(
		&s.ID,
		&s.MentorID,
		&s.MenteeID,
		&s.Title,
		&s.Description,
		&s.SessionType,
		&s.Mode,
		&s.MaxParticipants,
		&s.Status,
		&s.ScheduledDate,
		&s.DurationMinutes,
		&s.Amount,
		&s.AcceptedAt,
		&s.CompletedAt,
		&s.CancelledAt,
		&s.CancelledBy,
		&s.CancellationReason,
		&rating,
		&s.Feedback,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		r := int(rating.Int64)
		s.Rating = &r
	}
	return &s, nil
}

// Create inserts the session and its initial participants in one transaction
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const query = `
	INSERT INTO sessions (
		id,
		mentor_id,
		mentee_id,
		title,
		description,
		session_type,
		session_mode,
		max_participants,
		status,
		scheduled_date,
		duration,
		amount,
		created_at,
		updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	RETURNING created_at, updated_at
	`

	err = tx.QueryRowContext(
		ctx,
		query,
		session.ID,
		session.MentorID,
		session.MenteeID,
		session.Title,
		session.Description,
		session.SessionType,
		session.Mode,
		session.MaxParticipants,
		session.Status,
		session.ScheduledDate,
		session.DurationMinutes,
		session.Amount,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return err
	}

	for _, p := range session.Participants {
		if err := insertParticipant(ctx, tx, session.ID, p); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertParticipant(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID, p models.Participant) error {
	const query = `
	INSERT INTO session_participants (session_id, mentee_id, status, joined_at)
	VALUES ($1, $2, $3, $4)
	`
	_, err := tx.ExecContext(ctx, query, sessionID, p.MenteeID, p.Status, p.JoinedAt)
	return err
}

// GetByID loads a session with its participants
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 LIMIT 1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadParticipants(ctx, r.db, session); err != nil {
		return nil, err
	}
	return session, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (r *SessionRepository) loadParticipants(ctx context.Context, q queryer, session *models.Session) error {
	const query = `
	SELECT mentee_id, status, joined_at
	FROM session_participants
	WHERE session_id = $1
	ORDER BY joined_at ASC, mentee_id ASC
	`

	rows, err := q.QueryContext(ctx, query, session.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	session.Participants = session.Participants[:0]
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.MenteeID, &p.Status, &p.JoinedAt); err != nil {
			return err
		}
		session.Participants = append(session.Participants, p)
	}
	return rows.Err()
}

// ApplyTransition changes status only while the current status is one of t.From.
// A concurrent writer that already moved the session yields ErrStale.
func (r *SessionRepository) ApplyTransition(ctx context.Context, t models.Transition) (*models.Session, error) {
	var acceptedAt, completedAt, cancelledAt *time.Time
	switch t.To {
	case models.SessionStatusAccepted:
		acceptedAt = &t.At
	case models.SessionStatusCompleted:
		completedAt = &t.At
	case models.SessionStatusRejected, models.SessionStatusCancelled:
		cancelledAt = &t.At
	}

	from := make([]string, len(t.From))
	for i, s := range t.From {
		from[i] = string(s)
	}

	query := `
	UPDATE sessions
	SET
		status = $2,
		accepted_at = COALESCE($3, accepted_at),
		completed_at = COALESCE($4, completed_at),
		cancelled_at = COALESCE($5, cancelled_at),
		cancelled_by = COALESCE($6, cancelled_by),
		cancellation_reason = COALESCE($7, cancellation_reason),
		updated_at = NOW()
	WHERE id = $1 AND status = ANY($8)
	RETURNING ` + sessionColumns

	session, err := scanSession(r.db.QueryRowContext(
		ctx,
		query,
		t.SessionID,
		t.To,
		acceptedAt,
		completedAt,
		cancelledAt,
		t.By,
		t.Reason,
		pq.Array(from),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s to %s: %w", t.SessionID, t.To, apperrors.ErrStale)
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadParticipants(ctx, r.db, session); err != nil {
		return nil, err
	}
	return session, nil
}

// AddParticipant appends a mentee to an open group session. The session row is
// locked so concurrent joins for the last slot serialize.
func (r *SessionRepository) AddParticipant(ctx context.Context, sessionID, menteeID uuid.UUID, at time.Time) (*models.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`
	session, err := scanSession(tx.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadParticipants(ctx, tx, session); err != nil {
		return nil, err
	}

	if session.Mode != models.SessionModeGroup {
		return nil, fmt.Errorf("session %s is not a group session: %w", sessionID, apperrors.ErrNotFound)
	}
	if session.Status == models.SessionStatusFull {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrCapacity)
	}
	if session.Status != models.SessionStatusOpen {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, session.Status, apperrors.ErrNotFound)
	}
	if session.HasParticipant(menteeID) {
		return nil, fmt.Errorf("mentee %s: %w", menteeID, apperrors.ErrDuplicate)
	}
	if len(session.Participants) >= session.MaxParticipants {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrCapacity)
	}

	p := models.Participant{MenteeID: menteeID, Status: models.ParticipantJoined, JoinedAt: at}
	if err := insertParticipant(ctx, tx, sessionID, p); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("mentee %s: %w", menteeID, apperrors.ErrDuplicate)
		}
		return nil, err
	}
	session.Participants = append(session.Participants, p)

	if len(session.Participants) == session.MaxParticipants {
		const full = `UPDATE sessions SET status = $1, updated_at = NOW() WHERE id = $2`
		if _, err := tx.ExecContext(ctx, full, models.SessionStatusFull, sessionID); err != nil {
			return nil, err
		}
		session.Status = models.SessionStatusFull
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

// SetFeedback records the rating once, for the mentee of a completed session
func (r *SessionRepository) SetFeedback(ctx context.Context, sessionID, menteeID uuid.UUID, rating int, feedback *string) (*models.Session, error) {
	query := `
	UPDATE sessions
	SET rating = $3, feedback = $4, updated_at = NOW()
	WHERE id = $1
		AND mentee_id = $2
		AND session_mode = $5
		AND status = $6
		AND rating IS NULL
	RETURNING ` + sessionColumns

	session, err := scanSession(r.db.QueryRowContext(
		ctx,
		query,
		sessionID,
		menteeID,
		rating,
		feedback,
		models.SessionModeOneOnOne,
		models.SessionStatusCompleted,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feedback for session %s: %w", sessionID, apperrors.ErrStale)
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadParticipants(ctx, r.db, session); err != nil {
		return nil, err
	}
	return session, nil
}

// MentorRatings returns every rating given to the mentor's sessions
func (r *SessionRepository) MentorRatings(ctx context.Context, mentorID uuid.UUID) ([]int, error) {
	const query = `SELECT rating FROM sessions WHERE mentor_id = $1 AND rating IS NOT NULL`

	rows, err := r.db.QueryContext(ctx, query, mentorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ratings []int
	for rows.Next() {
		var rating int
		if err := rows.Scan(&rating); err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}

// ListForUser returns sessions where the user is mentor, mentee or participant, newest first
func (r *SessionRepository) ListForUser(ctx context.Context, userID uuid.UUID, filter models.SessionFilter) ([]*models.Session, int, error) {
	where := []string{`(
		s.mentor_id = $1
		OR s.mentee_id = $1
		OR EXISTS (SELECT 1 FROM session_participants p WHERE p.session_id = s.id AND p.mentee_id = $1)
	)`}
	args := []interface{}{userID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("s.status = $%d", len(args)))
	}
	if filter.Mode != nil {
		args = append(args, *filter.Mode)
		where = append(where, fmt.Sprintf("s.session_mode = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM sessions s WHERE ` + clause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	listQuery := fmt.Sprintf(
		`SELECT %s FROM sessions s WHERE %s ORDER BY s.scheduled_date DESC, s.id LIMIT $%d OFFSET $%d`,
		prefixColumns("s", sessionColumns), clause, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, session := range sessions {
		if err := r.loadParticipants(ctx, r.db, session); err != nil {
			return nil, 0, err
		}
	}
	return sessions, total, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
