// Package repository defines data access interfaces for the account store.
// These interfaces abstract database operations, allowing for different implementations
// (SQLite, PostgreSQL) while keeping the service layer clean.
// All predicates are exact matches; no range queries are needed.
package repository

import (
	"context"
	"time"

	"github.com/koor-fr/security-component/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
// Counter mutations are single atomic statements; callers never read-modify-write.
type UserRepository interface {
	// Create creates a new user. The ID is assigned as the current maximum + 1.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByLogin retrieves a user by login.
	GetByLogin(ctx context.Context, login string) (*domain.User, error)

	// GetByCredentials retrieves the user matching both login and encoded password.
	GetByCredentials(ctx context.Context, login, passwordHash string) (*domain.User, error)

	// ListByRole returns every user associated with the role.
	ListByRole(ctx context.Context, roleID int64) ([]*domain.User, error)

	// Update replaces the whole row identified by user.ID.
	Update(ctx context.Context, user *domain.User) error

	// Delete deletes a user by ID, along with its role associations.
	Delete(ctx context.Context, id int64) error

	// ExistsByLogin checks if a user with the given login exists.
	ExistsByLogin(ctx context.Context, login string) (bool, error)

	// RecordConnection increments connection_count and sets last_connection_at
	// for an enabled user. Returns the new connection count, or
	// domain.ErrAccountDisabled if the row is disabled.
	RecordConnection(ctx context.Context, id int64, at time.Time) (int64, error)

	// ResetConsecutiveErrors sets consecutive_errors to 0.
	ResetConsecutiveErrors(ctx context.Context, id int64) error

	// IncrementConsecutiveErrors adds one to consecutive_errors and returns the
	// value it had before the increment.
	IncrementConsecutiveErrors(ctx context.Context, id int64) (previous int, err error)

	// SetDisabled sets the disabled flag.
	SetDisabled(ctx context.Context, id int64, disabled bool) error
}

// =============================================================================
// Role Repository
// =============================================================================

// RoleRepository defines the interface for role and role membership data access.
type RoleRepository interface {
	// Create creates a new role. The ID is assigned as the current maximum + 1.
	Create(ctx context.Context, role *domain.Role) error

	// GetByID retrieves a role by ID.
	GetByID(ctx context.Context, id int64) (*domain.Role, error)

	// GetByName retrieves a role by name.
	GetByName(ctx context.Context, name string) (*domain.Role, error)

	// List returns all roles ordered by ID.
	List(ctx context.Context) ([]*domain.Role, error)

	// Update replaces the whole row identified by role.ID.
	Update(ctx context.Context, role *domain.Role) error

	// Delete deletes a role by ID, along with its user associations.
	Delete(ctx context.Context, id int64) error

	// ExistsByName checks if a role with the given name exists.
	ExistsByName(ctx context.Context, name string) (bool, error)

	// --- Membership operations ---

	// Assign associates a user with a role. Assigning twice is a no-op.
	Assign(ctx context.Context, userID, roleID int64) error

	// Revoke removes the association. Revoking a missing association is a no-op.
	Revoke(ctx context.Context, userID, roleID int64) error

	// ListRoleIDsByUser scans the association table by user ID.
	ListRoleIDsByUser(ctx context.Context, userID int64) ([]int64, error)
}

// Repositories holds all repository instances backed by one store connection.
type Repositories struct {
	User UserRepository
	Role RoleRepository
}
