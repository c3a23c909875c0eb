package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/repository"
)

const userColumns = `id, login, password_hash, connection_count, last_connection_at,
	consecutive_errors, disabled, first_name, last_name, email`

// userRepository implements repository.UserRepository for SQLite.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, login, password_hash, connection_count, last_connection_at,
			consecutive_errors, disabled, first_name, last_name, email)
		SELECT COALESCE(MAX(id), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM users
		RETURNING id
	`

	err := r.db.conn.QueryRowContext(ctx, query,
		user.Login,
		user.PasswordHash,
		user.ConnectionCount,
		formatTime(user.LastConnectionAt),
		user.ConsecutiveErrors,
		boolToInt(user.Disabled),
		user.FirstName,
		user.LastName,
		user.Email,
	).Scan(&user.ID)

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
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

// GetByLogin retrieves a user by login.
func (r *userRepository) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE login = ?`

	user, err := scanUser(r.db.conn.QueryRowContext(ctx, query, login))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by login: %w", err)
	}
	return user, nil
}

// GetByCredentials retrieves the user matching both login and encoded password.
func (r *userRepository) GetByCredentials(ctx context.Context, login, passwordHash string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE login = ? AND password_hash = ?`

	user, err := scanUser(r.db.conn.QueryRowContext(ctx, query, login, passwordHash))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by credentials: %w", err)
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
		WHERE ur.role_id = ?
		ORDER BY u.id
	`

	rows, err := r.db.conn.QueryContext(ctx, query, roleID)
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
		SET login = ?, password_hash = ?, connection_count = ?, last_connection_at = ?,
			consecutive_errors = ?, disabled = ?, first_name = ?, last_name = ?, email = ?
		WHERE id = ?
	`

	result, err := r.db.conn.ExecContext(ctx, query,
		user.Login,
		user.PasswordHash,
		user.ConnectionCount,
		formatTime(user.LastConnectionAt),
		user.ConsecutiveErrors,
		boolToInt(user.Disabled),
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

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// Delete deletes a user by ID together with its role associations.
func (r *userRepository) Delete(ctx context.Context, id int64) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete user roles: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

// ExistsByLogin checks if a user with the given login exists.
func (r *userRepository) ExistsByLogin(ctx context.Context, login string) (bool, error) {
	var count int
	err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE login = ?`, login).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check login existence: %w", err)
	}
	return count > 0, nil
}

// RecordConnection increments the connection counter of an enabled user.
func (r *userRepository) RecordConnection(ctx context.Context, id int64, at time.Time) (int64, error) {
	query := `
		UPDATE users
		SET connection_count = connection_count + 1, last_connection_at = ?
		WHERE id = ? AND disabled = 0
		RETURNING connection_count
	`

	var count int64
	err := r.db.conn.QueryRowContext(ctx, query, formatTime(at), id).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("failed to record connection: %w", err)
	}

	// Nothing updated: the row is either disabled or gone.
	var disabled int
	err = r.db.conn.QueryRowContext(ctx, `SELECT disabled FROM users WHERE id = ?`, id).Scan(&disabled)
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
	result, err := r.db.conn.ExecContext(ctx, `UPDATE users SET consecutive_errors = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to reset consecutive errors: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// IncrementConsecutiveErrors adds one to consecutive_errors and returns the previous value.
func (r *userRepository) IncrementConsecutiveErrors(ctx context.Context, id int64) (int, error) {
	query := `
		UPDATE users
		SET consecutive_errors = consecutive_errors + 1
		WHERE id = ?
		RETURNING consecutive_errors - 1
	`

	var previous int
	if err := r.db.conn.QueryRowContext(ctx, query, id).Scan(&previous); err != nil {
		if isNoRows(err) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to increment consecutive errors: %w", err)
	}
	return previous, nil
}

// SetDisabled sets the disabled flag.
func (r *userRepository) SetDisabled(ctx context.Context, id int64, disabled bool) error {
	result, err := r.db.conn.ExecContext(ctx, `UPDATE users SET disabled = ? WHERE id = ?`, boolToInt(disabled), id)
	if err != nil {
		return fmt.Errorf("failed to set disabled flag: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{Roles: []domain.Role{}}
	var disabled int
	var lastConnection sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Login,
		&user.PasswordHash,
		&user.ConnectionCount,
		&lastConnection,
		&user.ConsecutiveErrors,
		&disabled,
		&user.FirstName,
		&user.LastName,
		&user.Email,
	)
	if err != nil {
		return nil, err
	}

	user.Disabled = disabled != 0
	user.LastConnectionAt = parseTime(lastConnection)
	return user, nil
}

// boolToInt converts a boolean to an integer (SQLite doesn't have native boolean).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime stores timestamps as UTC RFC3339 text; the zero time is NULL.
func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
