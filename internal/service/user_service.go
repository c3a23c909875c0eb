package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/lock"
	"github.com/koor-fr/security-component/internal/repository"
)

// UserService handles user management operations.
type UserService struct {
	userRepo repository.UserRepository
	roles    RoleLoader
	encoder  domain.PasswordEncoder
	verifier Verifier
	locks    loginLocker
	logger   zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(
	userRepo repository.UserRepository,
	roles RoleLoader,
	encoder domain.PasswordEncoder,
	verifier Verifier,
	locker lock.Locker,
	policy LockPolicy,
	logger zerolog.Logger,
) *UserService {
	logger = logger.With().Str("service", "user").Logger()
	return &UserService{
		userRepo: userRepo,
		roles:    roles,
		encoder:  encoder,
		verifier: verifier,
		locks:    loginLocker{locker: locker, policy: policy, logger: logger},
		logger:   logger,
	}
}

// CreateUserInput contains the data needed to create a new user.
type CreateUserInput struct {
	Login     string
	Password  string
	FirstName string
	LastName  string
	Email     string
}

// CheckCredentials verifies a login/secret pair and returns the user with its roles.
func (s *UserService) CheckCredentials(ctx context.Context, login, secret string) (*domain.User, error) {
	return s.verifier.Verify(ctx, login, secret)
}

// EncryptPassword returns the encoded form stored for clear.
func (s *UserService) EncryptPassword(clear string) (string, error) {
	encoded, err := s.encoder.Encode(clear)
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode password: %v", ErrInternalError, err)
	}
	return encoded, nil
}

// Create creates a new user account.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	exists, err := s.userRepo.ExistsByLogin(ctx, input.Login)
	if err != nil {
		s.logger.Error().Err(err).Str("login", input.Login).Msg("failed to check login existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, domain.WithSubject(ErrUserAlreadyExists, "duplicate login", input.Login)
	}

	user := domain.NewUser(input.Login, "")
	if err := user.SetPassword(s.encoder, input.Password); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode password")
		return nil, fmt.Errorf("%w: failed to encode password", ErrInternalError)
	}
	user.FirstName = input.FirstName
	user.LastName = input.LastName
	user.Email = input.Email

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, s.storeError(err, "failed to create user", 0)
	}

	s.logger.Info().
		Int64("user_id", user.ID).
		Str("login", user.Login).
		Msg("user created")

	return user, nil
}

// GetByID retrieves a user by ID.
func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "failed to get user", id)
	}
	return user, nil
}

// GetByLogin retrieves a user by login.
func (s *UserService) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	user, err := s.userRepo.GetByLogin(ctx, login)
	if err != nil {
		return nil, s.storeError(err, "failed to get user by login", 0)
	}
	return user, nil
}

// LoadRoles replaces user.Roles with the roles currently granted in the store.
func (s *UserService) LoadRoles(ctx context.Context, user *domain.User) error {
	roles, err := s.roles.ListByUser(ctx, user.ID)
	if err != nil {
		return err
	}

	user.Roles = make([]domain.Role, 0, len(roles))
	for _, role := range roles {
		user.AddRole(role)
	}
	return nil
}

// ListByRole returns the users holding a role.
func (s *UserService) ListByRole(ctx context.Context, roleID int64) ([]*domain.User, error) {
	users, err := s.userRepo.ListByRole(ctx, roleID)
	if err != nil {
		return nil, s.storeError(err, "failed to list users by role", 0)
	}
	return users, nil
}

// Update replaces the stored row of user.
func (s *UserService) Update(ctx context.Context, user *domain.User) error {
	if err := validateName(user.Login); err != nil {
		return ErrInvalidLogin
	}
	if user.Email != "" {
		if _, err := mail.ParseAddress(user.Email); err != nil {
			return ErrInvalidEmail
		}
	}

	return s.withUserLock(ctx, user.ID, func(*domain.User) error {
		if err := s.userRepo.Update(ctx, user); err != nil {
			return s.storeError(err, "failed to update user", user.ID)
		}
		s.logger.Info().Int64("user_id", user.ID).Str("login", user.Login).Msg("user updated")
		return nil
	})
}

// UpdateProfile writes the login, names and email of user, keeping the stored
// password, counters and disabled flag.
func (s *UserService) UpdateProfile(ctx context.Context, user *domain.User) error {
	if err := validateName(user.Login); err != nil {
		return ErrInvalidLogin
	}
	if user.Email != "" {
		if _, err := mail.ParseAddress(user.Email); err != nil {
			return ErrInvalidEmail
		}
	}

	return s.withUserLock(ctx, user.ID, func(stored *domain.User) error {
		stored.Login = user.Login
		stored.FirstName = user.FirstName
		stored.LastName = user.LastName
		stored.Email = user.Email

		if err := s.userRepo.Update(ctx, stored); err != nil {
			return s.storeError(err, "failed to update user profile", user.ID)
		}
		*user = *stored
		return nil
	})
}

// Delete deletes a user account and its role associations.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	return s.withUserLock(ctx, id, func(*domain.User) error {
		if err := s.userRepo.Delete(ctx, id); err != nil {
			return s.storeError(err, "failed to delete user", id)
		}

		s.logger.Info().Int64("user_id", id).Msg("user deleted")
		return nil
	})
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidPassword
	}

	return s.withUserLock(ctx, id, func(user *domain.User) error {
		same, err := user.IsSamePassword(s.encoder, oldPassword)
		if err != nil {
			return fmt.Errorf("%w: failed to encode password", ErrInternalError)
		}
		if !same {
			s.logger.Debug().Int64("user_id", id).Msg("password change rejected")
			return ErrBadCredentials
		}

		if err := user.SetPassword(s.encoder, newPassword); err != nil {
			return fmt.Errorf("%w: failed to encode password", ErrInternalError)
		}
		if err := s.userRepo.Update(ctx, user); err != nil {
			return s.storeError(err, "failed to update password", id)
		}

		s.logger.Info().Int64("user_id", id).Msg("password updated")
		return nil
	})
}

// SetDisabled enables or disables an account. Enabling also clears the
// consecutive error counter so the next failure does not lock it again.
func (s *UserService) SetDisabled(ctx context.Context, id int64, disabled bool) error {
	return s.withUserLock(ctx, id, func(*domain.User) error {
		if err := s.userRepo.SetDisabled(ctx, id, disabled); err != nil {
			return s.storeError(err, "failed to set disabled flag", id)
		}
		if !disabled {
			if err := s.userRepo.ResetConsecutiveErrors(ctx, id); err != nil {
				return s.storeError(err, "failed to reset consecutive errors", id)
			}
		}

		s.logger.Info().Int64("user_id", id).Bool("disabled", disabled).Msg("user disabled flag updated")
		return nil
	})
}

// withUserLock loads the stored user and runs fn while holding the lock of its
// login, so administrative writes do not interleave with a verification.
func (s *UserService) withUserLock(ctx context.Context, id int64, fn func(stored *domain.User) error) error {
	stored, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return s.storeError(err, "failed to get user", id)
	}

	release, err := s.locks.acquire(ctx, stored.Login)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to lock user")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	defer release()

	// Counters may have moved before the lock was taken.
	fresh, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return s.storeError(err, "failed to get user", id)
	}
	return fn(fresh)
}

// storeError passes domain errors through and wraps anything else as internal.
func (s *UserService) storeError(err error, msg string, userID int64) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyRegistered) {
		return err
	}
	s.logger.Error().Err(err).Int64("user_id", userID).Msg(msg)
	return fmt.Errorf("%w: %v", ErrInternalError, err)
}

// validateCreateInput validates the input for creating a user.
func validateCreateInput(input CreateUserInput) error {
	if err := validateName(input.Login); err != nil {
		return ErrInvalidLogin
	}

	if input.Password == "" {
		return ErrInvalidPassword
	}

	if input.Email != "" {
		if _, err := mail.ParseAddress(input.Email); err != nil {
			return ErrInvalidEmail
		}
	}

	return nil
}
