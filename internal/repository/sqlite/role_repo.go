package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/repository"
)

// roleRepository implements repository.RoleRepository for SQLite.
type roleRepository struct {
	db *DB
}

// NewRoleRepository creates a new SQLite role repository.
func NewRoleRepository(db *DB) repository.RoleRepository {
	return &roleRepository{db: db}
}

// Create creates a new role.
func (r *roleRepository) Create(ctx context.Context, role *domain.Role) error {
	query := `
		INSERT INTO roles (id, name)
		SELECT COALESCE(MAX(id), 0) + 1, ?
		FROM roles
		RETURNING id
	`

	if err := r.db.conn.QueryRowContext(ctx, query, role.Name).Scan(&role.ID); err != nil {
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
	err := r.db.conn.QueryRowContext(ctx, `SELECT id, name FROM roles WHERE id = ?`, id).Scan(&role.ID, &role.Name)
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
	err := r.db.conn.QueryRowContext(ctx, `SELECT id, name FROM roles WHERE name = ?`, name).Scan(&role.ID, &role.Name)
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
	rows, err := r.db.conn.QueryContext(ctx, `SELECT id, name FROM roles ORDER BY id`)
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
	result, err := r.db.conn.ExecContext(ctx, `UPDATE roles SET name = ? WHERE id = ?`, role.Name, role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WithSubject(domain.ErrRoleAlreadyExists, "duplicate name", role.Name)
		}
		return fmt.Errorf("failed to update role: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

// Delete deletes a role by ID together with its user associations.
func (r *roleRepository) Delete(ctx context.Context, id int64) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete role members: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return domain.ErrRoleNotFound
		}
		return nil
	})
}

// ExistsByName checks if a role with the given name exists.
func (r *roleRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var count int
	err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check role existence: %w", err)
	}
	return count > 0, nil
}

// Assign associates a user with a role.
func (r *roleRepository) Assign(ctx context.Context, userID, roleID int64) error {
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES (?, ?) ON CONFLICT (user_id, role_id) DO NOTHING`,
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
	_, err := r.db.conn.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// ListRoleIDsByUser returns the role IDs associated with a user.
func (r *roleRepository) ListRoleIDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT role_id FROM user_roles WHERE user_id = ? ORDER BY role_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan role ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role IDs: %w", err)
	}
	return ids, nil
}

// Ensure roleRepository implements repository.RoleRepository.
var _ repository.RoleRepository = (*roleRepository)(nil)
