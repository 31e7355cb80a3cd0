// Package service implements profile self-service and admin user management.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	appdomain "gymhub/backend/internal/application/domain"
	"gymhub/backend/internal/audit"
	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/logger"
	"gymhub/backend/internal/platform/apperr"
	roledomain "gymhub/backend/internal/role/domain"
	"gymhub/backend/internal/user/domain"
	"gymhub/backend/internal/user/repository"
)

// RoleService reads and assigns roles.
type RoleService interface {
	GetRole(ctx context.Context, userID string) (roledomain.Role, error)
	SetRole(ctx context.Context, userID string, role roledomain.Role) error
}

// RoleLister lists every role assignment.
type RoleLister interface {
	List(ctx context.Context) ([]roledomain.Assignment, error)
}

// StatusChecker reports a user's owner application status.
type StatusChecker interface {
	CheckStatus(ctx context.Context, userID string) (appdomain.Status, error)
}

// Me is the signed-in user's view of themselves.
type Me struct {
	Profile           domain.Profile   `json:"profile"`
	Role              roledomain.Role  `json:"role"`
	ApplicationStatus appdomain.Status `json:"application_status"`
}

// Service implements the profile and user management operations.
type Service struct {
	profiles    repository.Repository
	roles       RoleService
	assignments RoleLister
	statuses    StatusChecker
	audit       audit.AuditLogger
	logger      *zap.Logger
}

// NewService returns a user Service. auditLogger may be nil.
func NewService(profiles repository.Repository, roles RoleService, assignments RoleLister, statuses StatusChecker, auditLogger audit.AuditLogger, log *zap.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Service{
		profiles:    profiles,
		roles:       roles,
		assignments: assignments,
		statuses:    statuses,
		audit:       auditLogger,
		logger:      logger.OrNop(log),
	}
}

// GetProfile returns the profile for userID.
func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NewNotFound("profile", userID)
	}
	return p, nil
}

// EnsureProfile returns the caller's profile, creating it from the identity on first sign-in.
func (s *Service) EnsureProfile(ctx context.Context, id backend.Identity) (*domain.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id.ID)
	if err != nil || p != nil {
		return p, err
	}
	p = &domain.Profile{ID: id.ID, Name: domain.DisplayName(id.Email), Email: id.Email}
	err = s.profiles.Create(ctx, p)
	if errors.Is(err, backend.ErrConflict) {
		// Created by a concurrent request.
		return s.GetProfile(ctx, id.ID)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile created", zap.String("user_id", id.ID))
	return p, nil
}

// Me returns the caller's profile, role and application status.
func (s *Service) Me(ctx context.Context, id backend.Identity) (*Me, error) {
	p, err := s.EnsureProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.GetRole(ctx, id.ID)
	if err != nil {
		return nil, err
	}
	status, err := s.statuses.CheckStatus(ctx, id.ID)
	if err != nil {
		return nil, err
	}
	return &Me{Profile: *p, Role: role, ApplicationStatus: status}, nil
}

// UpdateProfile changes the caller's name and phone.
func (s *Service) UpdateProfile(ctx context.Context, userID string, u domain.ProfileUpdate) (*domain.Profile, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	ok, err := s.profiles.Update(ctx, userID, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NewNotFound("profile", userID)
	}
	return s.GetProfile(ctx, userID)
}

// CompleteOnboarding marks the caller's onboarding as done.
func (s *Service) CompleteOnboarding(ctx context.Context, userID string) (*domain.Profile, error) {
	ok, err := s.profiles.CompleteOnboarding(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NewNotFound("profile", userID)
	}
	return s.GetProfile(ctx, userID)
}

// ListUsers returns profiles with their roles, newest first. search matches name or email
// case-insensitively; roleFilter is "all", "admin", "owner" or "user".
func (s *Service) ListUsers(ctx context.Context, search, roleFilter string) ([]domain.UserWithRole, error) {
	var want roledomain.Role
	switch roleFilter {
	case "", "all":
	default:
		want = roledomain.Role(roleFilter)
		if !want.Valid() {
			return nil, apperr.NewValidation("role", fmt.Sprintf("must be all, admin, owner or user; got %q", roleFilter))
		}
	}
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	assignments, err := s.assignments.List(ctx)
	if err != nil {
		return nil, err
	}
	roles := make(map[string]roledomain.Role, len(assignments))
	for _, a := range assignments {
		roles[a.UserID] = a.Role
	}
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]domain.UserWithRole, 0, len(profiles))
	for _, p := range profiles {
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Email), needle) {
			continue
		}
		role, ok := roles[p.ID]
		if !ok || !role.Valid() {
			role = roledomain.RoleUser
		}
		if want != "" && role != want {
			continue
		}
		out = append(out, domain.UserWithRole{Profile: p, Role: role})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ChangeRole assigns role to userID on behalf of actorID.
func (s *Service) ChangeRole(ctx context.Context, actorID, userID string, role roledomain.Role) error {
	if err := s.roles.SetRole(ctx, userID, role); err != nil {
		return err
	}
	s.logger.Info("role changed", zap.String("user_id", userID), zap.String("role", string(role)), zap.String("actor_id", actorID))
	s.audit.LogEvent(ctx, actorID, audit.ActionRoleChanged, "role", userID, fmt.Sprintf(`{"role":%q}`, role))
	return nil
}
