package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/repository"
)

// RoleService handles roles and user/role membership.
type RoleService struct {
	roleRepo repository.RoleRepository
	userRepo repository.UserRepository
	cache    repository.Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewRoleService creates a new RoleService. A nil cache disables caching.
func NewRoleService(
	roleRepo repository.RoleRepository,
	userRepo repository.UserRepository,
	cache repository.Cache,
	cacheTTL time.Duration,
	logger zerolog.Logger,
) *RoleService {
	return &RoleService{
		roleRepo: roleRepo,
		userRepo: userRepo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.With().Str("service", "role").Logger(),
	}
}

// GetByID retrieves a role by ID, through the cache.
func (s *RoleService) GetByID(ctx context.Context, id int64) (*domain.Role, error) {
	if role, ok := s.cached(ctx, id); ok {
		return role, nil
	}

	role, err := s.roleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "failed to get role", id)
	}

	s.remember(ctx, role)
	return role, nil
}

// GetByName retrieves a role by name.
func (s *RoleService) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	role, err := s.roleRepo.GetByName(ctx, name)
	if err != nil {
		return nil, s.storeError(err, "failed to get role by name", 0)
	}
	return role, nil
}

// List returns all roles ordered by ID.
func (s *RoleService) List(ctx context.Context) ([]*domain.Role, error) {
	roles, err := s.roleRepo.List(ctx)
	if err != nil {
		return nil, s.storeError(err, "failed to list roles", 0)
	}
	return roles, nil
}

// Create creates a new role.
func (s *RoleService) Create(ctx context.Context, name string) (*domain.Role, error) {
	if err := validateName(name); err != nil {
		return nil, ErrInvalidRoleName
	}

	role := domain.NewRole(name)
	if err := s.roleRepo.Create(ctx, role); err != nil {
		return nil, s.storeError(err, "failed to create role", 0)
	}

	s.logger.Info().Int64("role_id", role.ID).Str("name", role.Name).Msg("role created")
	return role, nil
}

// Update renames a role.
func (s *RoleService) Update(ctx context.Context, role *domain.Role) error {
	if err := validateName(role.Name); err != nil {
		return ErrInvalidRoleName
	}

	if err := s.roleRepo.Update(ctx, role); err != nil {
		return s.storeError(err, "failed to update role", role.ID)
	}
	s.forget(ctx, role.ID)

	s.logger.Info().Int64("role_id", role.ID).Str("name", role.Name).Msg("role updated")
	return nil
}

// Delete deletes a role and its user associations.
func (s *RoleService) Delete(ctx context.Context, id int64) error {
	if err := s.roleRepo.Delete(ctx, id); err != nil {
		return s.storeError(err, "failed to delete role", id)
	}
	s.forget(ctx, id)

	s.logger.Info().Int64("role_id", id).Msg("role deleted")
	return nil
}

// Assign grants a role to a user. Granting it twice is a no-op.
func (s *RoleService) Assign(ctx context.Context, userID, roleID int64) error {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return s.storeError(err, "failed to get user", 0)
	}
	if _, err := s.GetByID(ctx, roleID); err != nil {
		return err
	}

	if err := s.roleRepo.Assign(ctx, userID, roleID); err != nil {
		return s.storeError(err, "failed to assign role", roleID)
	}

	s.logger.Info().Int64("user_id", userID).Int64("role_id", roleID).Msg("role assigned")
	return nil
}

// Revoke removes a role from a user. Revoking a missing grant is a no-op.
func (s *RoleService) Revoke(ctx context.Context, userID, roleID int64) error {
	if err := s.roleRepo.Revoke(ctx, userID, roleID); err != nil {
		return s.storeError(err, "failed to revoke role", roleID)
	}

	s.logger.Info().Int64("user_id", userID).Int64("role_id", roleID).Msg("role revoked")
	return nil
}

// ListByUser returns the roles granted to a user.
// Associations are always read from the store; role rows may come from the cache.
func (s *RoleService) ListByUser(ctx context.Context, userID int64) ([]domain.Role, error) {
	ids, err := s.roleRepo.ListRoleIDsByUser(ctx, userID)
	if err != nil {
		return nil, s.storeError(err, "failed to list user roles", 0)
	}

	roles := make([]domain.Role, 0, len(ids))
	for _, id := range ids {
		role, err := s.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Deleted between the association scan and the lookup.
				continue
			}
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, nil
}

func (s *RoleService) cached(ctx context.Context, id int64) (*domain.Role, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(ctx, repository.RoleCacheKey(id))
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn().Err(err).Int64("role_id", id).Msg("role cache read failed")
		}
		return nil, false
	}

	var role domain.Role
	if err := json.Unmarshal(data, &role); err != nil {
		s.logger.Warn().Err(err).Int64("role_id", id).Msg("discarding malformed cached role")
		return nil, false
	}
	return &role, true
}

func (s *RoleService) remember(ctx context.Context, role *domain.Role) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(role)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, repository.RoleCacheKey(role.ID), data, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Int64("role_id", role.ID).Msg("role cache write failed")
	}
}

func (s *RoleService) forget(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, repository.RoleCacheKey(id)); err != nil {
		s.logger.Warn().Err(err).Int64("role_id", id).Msg("role cache invalidation failed")
	}
}

// storeError passes domain errors through and wraps anything else as internal.
func (s *RoleService) storeError(err error, msg string, roleID int64) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyRegistered) {
		return err
	}
	s.logger.Error().Err(err).Int64("role_id", roleID).Msg(msg)
	return fmt.Errorf("%w: %v", ErrInternalError, err)
}

// validateName checks a login or role name.
func validateName(name string) error {
	if len(name) < 1 || len(name) > 255 {
		return ErrInvalidArgument
	}
	return nil
}
