// Package service assigns the single active role of each user.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/logger"
	"gymhub/backend/internal/platform/apperr"
	"gymhub/backend/internal/role/domain"
	"gymhub/backend/internal/role/repository"
)

// ProfileChecker reports whether a user profile exists.
type ProfileChecker interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Service reads and overwrites role assignments.
type Service struct {
	roles    repository.Repository
	profiles ProfileChecker
	logger   *zap.Logger
}

// NewService returns a role Service.
func NewService(roles repository.Repository, profiles ProfileChecker, log *zap.Logger) *Service {
	return &Service{roles: roles, profiles: profiles, logger: logger.OrNop(log)}
}

// GetRole returns the role of userID. Users without an assignment are RoleUser.
func (s *Service) GetRole(ctx context.Context, userID string) (domain.Role, error) {
	a, err := s.roles.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if a == nil || !a.Role.Valid() {
		return domain.RoleUser, nil
	}
	return a.Role, nil
}

// SetRole overwrites the role of userID, creating the assignment if none exists.
// Setting the role a user already holds succeeds without change.
func (s *Service) SetRole(ctx context.Context, userID string, role domain.Role) error {
	if !role.Valid() {
		return apperr.NewValidation("role", fmt.Sprintf("must be one of admin, owner, user; got %q", role))
	}
	if userID == "" {
		return apperr.NewValidation("user_id", "is required")
	}
	ok, err := s.profiles.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NewNotFound("profile", userID)
	}
	updated, err := s.roles.Update(ctx, userID, role)
	if err != nil {
		return err
	}
	if updated {
		s.logger.Debug("role updated", zap.String("user_id", userID), zap.String("role", string(role)))
		return nil
	}
	err = s.roles.Create(ctx, userID, role)
	if errors.Is(err, backend.ErrConflict) {
		// Created concurrently; overwrite it.
		updated, err = s.roles.Update(ctx, userID, role)
		if err == nil && !updated {
			err = fmt.Errorf("role assignment for %s vanished during update", userID)
		}
	}
	if err != nil {
		return err
	}
	s.logger.Debug("role assigned", zap.String("user_id", userID), zap.String("role", string(role)))
	return nil
}
