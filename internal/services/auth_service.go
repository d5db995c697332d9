package services

import (
	"context"
	"errors"
	"time"

	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/utils"
)

type AuthService struct {
	users     UserDirectory
	jwtSecret string
	timeout   time.Duration
}

func NewAuthService(users UserDirectory, jwtSecret string, timeout time.Duration) *AuthService {
	return &AuthService{
		users:     users,
		jwtSecret: jwtSecret,
		timeout:   timeout,
	}
}

// Authenticate verifies a signed access token and resolves it to a live user
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, apperrors.Authentication("authentication required")
	}

	claims, err := utils.ParseAccessToken(token, s.jwtSecret)
	if err != nil {
		return nil, apperrors.Authentication("invalid or expired token")
	}

	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Authentication("user no longer exists")
	}
	if err != nil {
		return nil, apperrors.FromStore("failed to load user", err)
	}

	return &Identity{
		UserID: user.ID,
		Name:   user.Name,
		Role:   user.Role,
	}, nil
}
