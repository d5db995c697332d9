package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
)

// UserRepository reads the profile tables owned by the user service.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user row (used by seeding and the token command)
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	const query = `
	INSERT INTO users (id, name, email, role, hourly_rate, profile_pic, session_count, rating)
	VALUES ($1, $2, $3, $4, $5, $6, 0, 0)
	`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.Role, user.HourlyRate, user.ProfilePic)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.ID, apperrors.ErrDuplicate)
	}
	return err
}

// GetByID loads the public profile fields, never credentials
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const query = `
	SELECT id, name, email, role, hourly_rate, profile_pic, session_count, rating
	FROM users
	WHERE id = $1
	LIMIT 1
	`

	var u models.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.HourlyRate,
		&u.ProfilePic,
		&u.SessionCount,
		&u.Rating,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IncrementSessionCount bumps the mentor's completed session counter
func (r *UserRepository) IncrementSessionCount(ctx context.Context, mentorID uuid.UUID) error {
	const query = `UPDATE users SET session_count = session_count + 1 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, mentorID)
	return err
}

// SetRating stores the mentor's rolling average rating
func (r *UserRepository) SetRating(ctx context.Context, mentorID uuid.UUID, rating float64) error {
	const query = `UPDATE users SET rating = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, rating, mentorID)
	return err
}
