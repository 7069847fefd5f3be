package service

import (
	"context"
	"errors"
	"strings"

	"hirexp-auth/internal/model"
	"hirexp-auth/internal/rbac"
	"hirexp-auth/internal/repository"

	"github.com/google/uuid"
)

// Me is the signed-in user's view of their own account.
type Me struct {
	User        *model.User
	Profile     *model.Profile
	Permissions []rbac.Permission
	Dashboard   string
}

type UserService interface {
	GetMe(ctx context.Context, userID uuid.UUID) (*Me, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, update model.ProfileUpdate) (*model.Profile, error)
	RegisterDevice(ctx context.Context, userID uuid.UUID, token, platform string) error
}

type userService struct {
	repos repository.Repositories
}

func NewUserService(repos repository.Repositories) UserService {
	return &userService{repos: repos}
}

func (s *userService) GetMe(ctx context.Context, userID uuid.UUID) (*Me, error) {
	user, err := s.repos.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	profile, err := s.repos.Profiles.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	return &Me{
		User:        user,
		Profile:     profile,
		Permissions: rbac.PermissionsFor(user.Role),
		Dashboard:   rbac.DashboardFor(user.Role),
	}, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, update model.ProfileUpdate) (*model.Profile, error) {
	profile, err := s.repos.Profiles.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		update.Name = &trimmed
	}
	profile.Apply(update)

	if err := s.repos.Profiles.Update(ctx, profile); err != nil {
		return nil, err
	}

	return s.repos.Profiles.FindByUserID(ctx, userID)
}

func (s *userService) RegisterDevice(ctx context.Context, userID uuid.UUID, token, platform string) error {
	if platform == "" {
		platform = "ios"
	}
	return s.repos.Devices.Upsert(ctx, &model.DeviceToken{
		UserID:      userID,
		DeviceToken: token,
		Platform:    platform,
	})
}
