package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/repository"
)

const userColumns = `id, login, password_hash, connection_count, last_connection_at,
	consecutive_errors, disabled, first_name, last_name, email`

// userRepository implements repository.UserRepository.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

// Create inserts a user. The table lock keeps MAX(id)+1 unique under concurrent inserts.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, login, password_hash, connection_count, last_connection_at,
			consecutive_errors, disabled, first_name, last_name, email)
		SELECT COALESCE(MAX(id), 0) + 1, $1, $2, $3, $4, $5, $6, $7, $8, $9
		FROM users
		RETURNING id
	`

	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		return tx.QueryRow(ctx, query,
			user.Login,
			user.PasswordHash,
			user.ConnectionCount,
			nullTime(user.LastConnectionAt),
			user.ConsecutiveErrors,
			user.Disabled,
			user.FirstName,
			user.LastName,
			user.Email,
		).Scan(&user.ID)
	})

	if err != nil {
		if isUniqueViolation(err) {
			return domain.WithSubject(domain.ErrUserAlreadyExists, "duplicate login", user.Login)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, "get user by ID", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByLogin retrieves a user by login.
func (r *userRepository) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	return r.getOne(ctx, "get user by login", `SELECT `+userColumns+` FROM users WHERE login = $1`, login)
}

// GetByCredentials retrieves the user matching both login and encoded password.
func (r *userRepository) GetByCredentials(ctx context.Context, login, passwordHash string) (*domain.User, error) {
	return r.getOne(ctx, "get user by credentials",
		`SELECT `+userColumns+` FROM users WHERE login = $1 AND password_hash = $2`, login, passwordHash)
}

func (r *userRepository) getOne(ctx context.Context, op, query string, args ...any) (*domain.User, error) {
	user, err := scanUser(r.db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return user, nil
}

// ListByRole returns every user associated with the role.
func (r *userRepository) ListByRole(ctx context.Context, roleID int64) ([]*domain.User, error) {
	query := `
		SELECT u.id, u.login, u.password_hash, u.connection_count, u.last_connection_at,
			u.consecutive_errors, u.disabled, u.first_name, u.last_name, u.email
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		WHERE ur.role_id = $1
		ORDER BY u.id
	`

	rows, err := r.db.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// Update updates an existing user.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET login = $1, password_hash = $2, connection_count = $3, last_connection_at = $4,
			consecutive_errors = $5, disabled = $6, first_name = $7, last_name = $8, email = $9
		WHERE id = $10
	`

	tag, err := r.db.pool.Exec(ctx, query,
		user.Login,
		user.PasswordHash,
		user.ConnectionCount,
		nullTime(user.LastConnectionAt),
		user.ConsecutiveErrors,
		user.Disabled,
		user.FirstName,
		user.LastName,
		user.Email,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WithSubject(domain.ErrUserAlreadyExists, "duplicate login", user.Login)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// Delete deletes a user by ID together with its role associations.
func (r *userRepository) Delete(ctx context.Context, id int64) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete user roles: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

// ExistsByLogin checks if a user with the given login exists.
func (r *userRepository) ExistsByLogin(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE login = $1)`, login).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check login existence: %w", err)
	}
	return exists, nil
}

// RecordConnection increments the connection counter of an enabled user.
func (r *userRepository) RecordConnection(ctx context.Context, id int64, at time.Time) (int64, error) {
	query := `
		UPDATE users
		SET connection_count = connection_count + 1, last_connection_at = $1
		WHERE id = $2 AND NOT disabled
		RETURNING connection_count
	`

	var count int64
	err := r.db.pool.QueryRow(ctx, query, at.UTC(), id).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("failed to record connection: %w", err)
	}

	var disabled bool
	err = r.db.pool.QueryRow(ctx, `SELECT disabled FROM users WHERE id = $1`, id).Scan(&disabled)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to record connection: %w", err)
	}
	return 0, domain.ErrAccountDisabled
}

// ResetConsecutiveErrors sets consecutive_errors to 0.
func (r *userRepository) ResetConsecutiveErrors(ctx context.Context, id int64) error {
	tag, err := r.db.pool.Exec(ctx, `UPDATE users SET consecutive_errors = 0 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to reset consecutive errors: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// IncrementConsecutiveErrors adds one to consecutive_errors and returns the previous value.
func (r *userRepository) IncrementConsecutiveErrors(ctx context.Context, id int64) (int, error) {
	query := `
		UPDATE users
		SET consecutive_errors = consecutive_errors + 1
		WHERE id = $1
		RETURNING consecutive_errors - 1
	`

	var previous int
	if err := r.db.pool.QueryRow(ctx, query, id).Scan(&previous); err != nil {
		if isNoRows(err) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to increment consecutive errors: %w", err)
	}
	return previous, nil
}

// SetDisabled sets the disabled flag.
func (r *userRepository) SetDisabled(ctx context.Context, id int64, disabled bool) error {
	tag, err := r.db.pool.Exec(ctx, `UPDATE users SET disabled = $1 WHERE id = $2`, disabled, id)
	if err != nil {
		return fmt.Errorf("failed to set disabled flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{Roles: []domain.Role{}}
	var lastConnection *time.Time

	err := row.Scan(
		&user.ID,
		&user.Login,
		&user.PasswordHash,
		&user.ConnectionCount,
		&lastConnection,
		&user.ConsecutiveErrors,
		&user.Disabled,
		&user.FirstName,
		&user.LastName,
		&user.Email,
	)
	if err != nil {
		return nil, err
	}

	if lastConnection != nil {
		user.LastConnectionAt = lastConnection.UTC()
	}
	return user, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
