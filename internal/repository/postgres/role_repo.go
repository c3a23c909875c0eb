package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/repository"
)

// roleRepository implements repository.RoleRepository.
type roleRepository struct {
	db *DB
}

// NewRoleRepository creates a new PostgreSQL role repository.
func NewRoleRepository(db *DB) repository.RoleRepository {
	return &roleRepository{db: db}
}

// Create inserts a role with ID MAX(id)+1.
func (r *roleRepository) Create(ctx context.Context, role *domain.Role) error {
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE roles IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO roles (id, name)
			SELECT COALESCE(MAX(id), 0) + 1, $1
			FROM roles
			RETURNING id
		`, role.Name).Scan(&role.ID)
	})

	if err != nil {
		if isUniqueViolation(err) {
			return domain.WithSubject(domain.ErrRoleAlreadyExists, "duplicate name", role.Name)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetByID retrieves a role by ID.
func (r *roleRepository) GetByID(ctx context.Context, id int64) (*domain.Role, error) {
	role := &domain.Role{}
	err := r.db.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE id = $1`, id).Scan(&role.ID, &role.Name)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role by ID: %w", err)
	}
	return role, nil
}

// GetByName retrieves a role by name.
func (r *roleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	role := &domain.Role{}
	err := r.db.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).Scan(&role.ID, &role.Name)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}
	return role, nil
}

// List returns all roles ordered by ID.
func (r *roleRepository) List(ctx context.Context) ([]*domain.Role, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT id, name FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []*domain.Role{}
	for rows.Next() {
		role := &domain.Role{}
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return roles, nil
}

// Update renames an existing role.
func (r *roleRepository) Update(ctx context.Context, role *domain.Role) error {
	tag, err := r.db.pool.Exec(ctx, `UPDATE roles SET name = $1 WHERE id = $2`, role.Name, role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WithSubject(domain.ErrRoleAlreadyExists, "duplicate name", role.Name)
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

// Delete deletes a role by ID together with its user associations.
func (r *roleRepository) Delete(ctx context.Context, id int64) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete role members: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrRoleNotFound
		}
		return nil
	})
}

// ExistsByName checks if a role with the given name exists.
func (r *roleRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role existence: %w", err)
	}
	return exists, nil
}

// Assign associates a user with a role.
func (r *roleRepository) Assign(ctx context.Context, userID, roleID int64) error {
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT (user_id, role_id) DO NOTHING`,
		userID, roleID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("failed to assign role %d to user %d: %w", roleID, userID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// Revoke removes a user/role association.
func (r *roleRepository) Revoke(ctx context.Context, userID, roleID int64) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// ListRoleIDsByUser returns the role IDs associated with a user.
func (r *roleRepository) ListRoleIDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan role IDs: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// Ensure roleRepository implements repository.RoleRepository.
var _ repository.RoleRepository = (*roleRepository)(nil)
