// Package service implements gym and plan management for owners and gym browsing for
// members. Every owner operation is authorized by the access policy.
package service

import (
	"context"
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/gym/domain"
	"gymhub/backend/internal/gym/repository"
	"gymhub/backend/internal/logger"
	"gymhub/backend/internal/platform/apperr"
	"gymhub/backend/internal/policy/engine"
	roledomain "gymhub/backend/internal/role/domain"
)

// MaxPhotoBytes bounds an uploaded gym photo.
const MaxPhotoBytes = 5 << 20

var photoExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// RoleGetter resolves a user's current role.
type RoleGetter interface {
	GetRole(ctx context.Context, userID string) (roledomain.Role, error)
}

// Service implements the gym and plan operations.
type Service struct {
	repo   repository.Repository
	roles  RoleGetter
	policy engine.Evaluator
	files  backend.FileStorage
	bucket string
	logger *zap.Logger
}

// NewService returns a gym Service. Photos are stored in bucket through files.
func NewService(repo repository.Repository, roles RoleGetter, policy engine.Evaluator, files backend.FileStorage, bucket string, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		roles:  roles,
		policy: policy,
		files:  files,
		bucket: bucket,
		logger: logger.OrNop(log),
	}
}

// authorize asks the policy whether callerID may perform action on a gym owned by ownerID.
func (s *Service) authorize(ctx context.Context, callerID, action, ownerID string) error {
	if callerID == "" {
		return apperr.NewUnauthenticated("no user")
	}
	role, err := s.roles.GetRole(ctx, callerID)
	if err != nil {
		return err
	}
	d, err := s.policy.Authorize(ctx, engine.AccessRequest{
		SubjectID:       callerID,
		SubjectRole:     string(role),
		Action:          action,
		ResourceOwnerID: ownerID,
	})
	if err != nil {
		return err
	}
	if !d.Allow {
		return apperr.NewForbidden(d.Reason)
	}
	return nil
}

// ownedGym loads gymID and authorizes action on it.
func (s *Service) ownedGym(ctx context.Context, callerID, gymID, action string) (*domain.Gym, error) {
	g, err := s.repo.GetGym(ctx, gymID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apperr.NewNotFound("gym", gymID)
	}
	if err := s.authorize(ctx, callerID, action, g.OwnerID); err != nil {
		return nil, err
	}
	return g, nil
}

// ownedPlan loads planID and its gym and authorizes action on the gym.
func (s *Service) ownedPlan(ctx context.Context, callerID, planID, action string) (*domain.Plan, error) {
	p, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NewNotFound("plan", planID)
	}
	if _, err := s.ownedGym(ctx, callerID, p.GymID, action); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateGym creates a gym owned by the caller.
func (s *Service) CreateGym(ctx context.Context, callerID string, in domain.GymInput) (*domain.Gym, error) {
	if err := s.authorize(ctx, callerID, engine.ActionGymCreate, ""); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	g := &domain.Gym{
		OwnerID:     callerID,
		Name:        in.Name,
		Description: in.Description,
		Location:    in.Location,
		Timings:     in.Timings,
		Photos:      []string{},
	}
	if err := s.repo.CreateGym(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("gym created", zap.String("gym_id", g.ID), zap.String("owner_id", callerID))
	return g, nil
}

// UpdateGym replaces the editable fields of a gym the caller owns.
func (s *Service) UpdateGym(ctx context.Context, callerID, gymID string, in domain.GymInput) (*domain.Gym, error) {
	g, err := s.ownedGym(ctx, callerID, gymID, engine.ActionGymUpdate)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	patch := backend.Row{
		"name":        in.Name,
		"description": in.Description,
		"location":    in.Location,
		"timings":     in.Timings,
	}
	if ok, err := s.repo.UpdateGym(ctx, g.ID, patch); err != nil {
		return nil, err
	} else if !ok {
		return nil, apperr.NewNotFound("gym", gymID)
	}
	g.Name, g.Description, g.Location, g.Timings = in.Name, in.Description, in.Location, in.Timings
	return g, nil
}

// DeleteGym removes a gym the caller owns, its plans and its photos. Photo removal is
// best-effort.
func (s *Service) DeleteGym(ctx context.Context, callerID, gymID string) error {
	g, err := s.ownedGym(ctx, callerID, gymID, engine.ActionGymDelete)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePlansByGym(ctx, g.ID); err != nil {
		return err
	}
	if err := s.repo.DeleteGym(ctx, g.ID); err != nil {
		return err
	}
	for _, url := range g.Photos {
		if p, ok := s.objectPath(url); ok {
			if err := s.files.Delete(ctx, s.bucket, p); err != nil {
				s.logger.Warn("gym photo cleanup failed", zap.String("gym_id", g.ID), zap.String("path", p), zap.Error(err))
			}
		}
	}
	s.logger.Info("gym deleted", zap.String("gym_id", g.ID), zap.String("owner_id", callerID))
	return nil
}

// ListOwnerGyms returns the caller's gyms, newest first.
func (s *Service) ListOwnerGyms(ctx context.Context, callerID string) ([]domain.Gym, error) {
	if err := s.authorize(ctx, callerID, engine.ActionGymList, ""); err != nil {
		return nil, err
	}
	return s.repo.ListGymsByOwner(ctx, callerID)
}

// GetGym returns one gym.
func (s *Service) GetGym(ctx context.Context, gymID string) (*domain.Gym, error) {
	g, err := s.repo.GetGym(ctx, gymID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apperr.NewNotFound("gym", gymID)
	}
	return g, nil
}

// UploadGymPhoto stores an image and appends its public URL to the gym's photos.
func (s *Service) UploadGymPhoto(ctx context.Context, callerID, gymID, contentType string, data []byte) (*domain.Gym, error) {
	g, err := s.ownedGym(ctx, callerID, gymID, engine.ActionGymPhoto)
	if err != nil {
		return nil, err
	}
	ext, ok := photoExt[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return nil, apperr.NewValidation("photo", "must be a jpeg, png, webp or gif image")
	}
	if len(data) == 0 {
		return nil, apperr.NewValidation("photo", "is empty")
	}
	if len(data) > MaxPhotoBytes {
		return nil, apperr.NewValidation("photo", fmt.Sprintf("must be at most %d bytes", MaxPhotoBytes))
	}
	objectPath := path.Join(g.ID, uuid.New().String()+ext)
	url, err := s.files.Upload(ctx, s.bucket, objectPath, data, contentType)
	if err != nil {
		return nil, err
	}
	photos := append(slices.Clone(g.Photos), url)
	if _, err := s.repo.UpdateGym(ctx, g.ID, backend.Row{"photos": photos}); err != nil {
		if derr := s.files.Delete(ctx, s.bucket, objectPath); derr != nil {
			s.logger.Warn("orphaned gym photo", zap.String("path", objectPath), zap.Error(derr))
		}
		return nil, err
	}
	g.Photos = photos
	return g, nil
}

// DeleteGymPhoto removes url from the gym's photos and deletes the stored object.
func (s *Service) DeleteGymPhoto(ctx context.Context, callerID, gymID, url string) (*domain.Gym, error) {
	g, err := s.ownedGym(ctx, callerID, gymID, engine.ActionGymPhoto)
	if err != nil {
		return nil, err
	}
	i := slices.Index(g.Photos, url)
	if i < 0 {
		return nil, apperr.NewNotFound("photo", url)
	}
	photos := slices.Delete(slices.Clone(g.Photos), i, i+1)
	if _, err := s.repo.UpdateGym(ctx, g.ID, backend.Row{"photos": photos}); err != nil {
		return nil, err
	}
	if p, ok := s.objectPath(url); ok {
		if err := s.files.Delete(ctx, s.bucket, p); err != nil {
			s.logger.Warn("gym photo delete failed", zap.String("gym_id", g.ID), zap.String("path", p), zap.Error(err))
		}
	}
	g.Photos = photos
	return g, nil
}

// objectPath extracts the in-bucket path from a public URL.
func (s *Service) objectPath(url string) (string, bool) {
	marker := "/" + s.bucket + "/"
	i := strings.Index(url, marker)
	if i < 0 {
		return "", false
	}
	p := url[i+len(marker):]
	return p, p != ""
}

// CreatePlan adds an active plan to a gym the caller owns.
func (s *Service) CreatePlan(ctx context.Context, callerID, gymID string, in domain.PlanInput) (*domain.Plan, error) {
	g, err := s.ownedGym(ctx, callerID, gymID, engine.ActionPlanCreate)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p := &domain.Plan{
		GymID:           g.ID,
		Name:            in.Name,
		DurationDays:    in.DurationDays,
		Price:           in.Price,
		DiscountedPrice: in.DiscountedPrice,
		Features:        in.Features,
		Amenities:       in.Amenities,
		IsActive:        true,
		MaxUsers:        in.MaxUsers,
		Badge:           in.Badge,
		Color:           in.Color,
	}
	if err := s.repo.CreatePlan(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("plan created", zap.String("plan_id", p.ID), zap.String("gym_id", g.ID))
	return p, nil
}

// UpdatePlan replaces the editable fields of a plan. The active flag is unchanged.
func (s *Service) UpdatePlan(ctx context.Context, callerID, planID string, in domain.PlanInput) (*domain.Plan, error) {
	p, err := s.ownedPlan(ctx, callerID, planID, engine.ActionPlanUpdate)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	patch := backend.Row{
		"name":             in.Name,
		"duration_days":    in.DurationDays,
		"price":            in.Price,
		"discounted_price": in.DiscountedPrice,
		"features":         in.Features,
		"amenities":        in.Amenities,
		"max_users":        in.MaxUsers,
		"badge":            nullable(in.Badge),
		"color":            nullable(in.Color),
	}
	if ok, err := s.repo.UpdatePlan(ctx, p.ID, patch); err != nil {
		return nil, err
	} else if !ok {
		return nil, apperr.NewNotFound("plan", planID)
	}
	return s.reloadPlan(ctx, p.ID)
}

// TogglePlan flips whether a plan is offered.
func (s *Service) TogglePlan(ctx context.Context, callerID, planID string) (*domain.Plan, error) {
	p, err := s.ownedPlan(ctx, callerID, planID, engine.ActionPlanUpdate)
	if err != nil {
		return nil, err
	}
	if ok, err := s.repo.UpdatePlan(ctx, p.ID, backend.Row{"is_active": !p.IsActive}); err != nil {
		return nil, err
	} else if !ok {
		return nil, apperr.NewNotFound("plan", planID)
	}
	p.IsActive = !p.IsActive
	s.logger.Info("plan toggled", zap.String("plan_id", p.ID), zap.Bool("is_active", p.IsActive))
	return p, nil
}

// DeletePlan removes a plan.
func (s *Service) DeletePlan(ctx context.Context, callerID, planID string) error {
	p, err := s.ownedPlan(ctx, callerID, planID, engine.ActionPlanDelete)
	if err != nil {
		return err
	}
	return s.repo.DeletePlan(ctx, p.ID)
}

// ListPlans returns every plan of a gym the caller owns, active or not, cheapest first.
func (s *Service) ListPlans(ctx context.Context, callerID, gymID string) ([]domain.Plan, error) {
	g, err := s.ownedGym(ctx, callerID, gymID, engine.ActionPlanList)
	if err != nil {
		return nil, err
	}
	plans, err := s.repo.ListPlans(ctx, g.ID, false)
	if err != nil {
		return nil, err
	}
	sortByPrice(plans)
	return plans, nil
}

// BrowseGyms lists gyms with at least one active plan. search matches name or location.
func (s *Service) BrowseGyms(ctx context.Context, search string) ([]domain.Summary, error) {
	gyms, err := s.repo.ListGyms(ctx, search)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(gyms))
	for i, g := range gyms {
		ids[i] = g.ID
	}
	plans, err := s.repo.ListActivePlans(ctx, ids)
	if err != nil {
		return nil, err
	}
	byGym := make(map[string][]domain.Plan)
	for _, p := range plans {
		byGym[p.GymID] = append(byGym[p.GymID], p)
	}
	out := make([]domain.Summary, 0, len(gyms))
	for _, g := range gyms {
		gp := byGym[g.ID]
		if len(gp) == 0 {
			continue
		}
		min := gp[0].EffectivePrice()
		for _, p := range gp[1:] {
			if ep := p.EffectivePrice(); ep.LessThan(min) {
				min = ep
			}
		}
		out = append(out, domain.Summary{Gym: g, MinPrice: min, ActivePlans: len(gp)})
	}
	return out, nil
}

// GymDetails returns a gym and its active plans, cheapest first.
func (s *Service) GymDetails(ctx context.Context, gymID string) (*domain.Details, error) {
	g, err := s.GetGym(ctx, gymID)
	if err != nil {
		return nil, err
	}
	plans, err := s.repo.ListPlans(ctx, g.ID, true)
	if err != nil {
		return nil, err
	}
	sortByPrice(plans)
	return &domain.Details{Gym: *g, Plans: plans}, nil
}

// GetActivePlan returns a plan that is currently offered.
func (s *Service) GetActivePlan(ctx context.Context, planID string) (*domain.Plan, error) {
	p, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.IsActive {
		return nil, apperr.NewNotFound("active plan", planID)
	}
	return p, nil
}

func (s *Service) reloadPlan(ctx context.Context, id string) (*domain.Plan, error) {
	p, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NewNotFound("plan", id)
	}
	return p, nil
}

func sortByPrice(plans []domain.Plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].EffectivePrice().LessThan(plans[j].EffectivePrice())
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
