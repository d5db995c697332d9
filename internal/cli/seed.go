package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"gopkg.in/yaml.v3"
)

type userStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Email      string   `yaml:"email"`
	Role       string   `yaml:"role"`
	HourlyRate *float64 `yaml:"hourly_rate"`
	ProfilePic *string  `yaml:"profile_pic"`
}

func (u seedUser) toModel() (*models.User, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, fmt.Errorf("user %q: invalid id: %w", u.Name, err)
	}
	role := models.UserRole(u.Role)
	switch role {
	case models.RoleMentor, models.RoleMentee, models.RoleAdmin:
	default:
		return nil, fmt.Errorf("user %q: unknown role %q", u.Name, u.Role)
	}
	return &models.User{
		ID:         id,
		Name:       u.Name,
		Email:      u.Email,
		Role:       role,
		HourlyRate: u.HourlyRate,
		ProfilePic: u.ProfilePic,
	}, nil
}

// seedUsers creates the users listed in the YAML file at path. Users that
// already exist are skipped.
func seedUsers(ctx context.Context, users userStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	created := 0
	for _, su := range f.Users {
		u, err := su.toModel()
		if err != nil {
			return created, err
		}
		err = users.Create(ctx, u)
		if errors.Is(err, apperrors.ErrDuplicate) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create user %s: %w", u.ID, err)
		}
		created++
	}
	return created, nil
}
