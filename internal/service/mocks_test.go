package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/lock"
)

// =============================================================================
// Mock Types
// =============================================================================

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	args := m.Called(ctx, login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByCredentials(ctx context.Context, login, passwordHash string) (*domain.User, error) {
	args := m.Called(ctx, login, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) ListByRole(ctx context.Context, roleID int64) ([]*domain.User, error) {
	args := m.Called(ctx, roleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepository) ExistsByLogin(ctx context.Context, login string) (bool, error) {
	args := m.Called(ctx, login)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) RecordConnection(ctx context.Context, id int64, at time.Time) (int64, error) {
	args := m.Called(ctx, id, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockUserRepository) ResetConsecutiveErrors(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepository) IncrementConsecutiveErrors(ctx context.Context, id int64) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockUserRepository) SetDisabled(ctx context.Context, id int64, disabled bool) error {
	args := m.Called(ctx, id, disabled)
	return args.Error(0)
}

type mockRoleLoader struct {
	mock.Mock
}

func (m *mockRoleLoader) ListByUser(ctx context.Context, userID int64) ([]domain.Role, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Role), args.Error(1)
}

// prefixEncoder is a deterministic encoder that is cheap enough for table tests.
type prefixEncoder struct {
	err error
}

func (e prefixEncoder) Encode(clear string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return "enc:" + clear, nil
}

func newMemoryLocker(t *testing.T) *lock.MemoryLocker {
	t.Helper()
	ml := lock.NewMemoryLocker()
	t.Cleanup(func() { _ = ml.Close() })
	return ml
}

// impatient gives up on a busy lock after one retry.
var impatient = LockPolicy{TTL: time.Second, Retries: 1, RetryDelay: time.Millisecond}

// busyLocker never grants a lock.
type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, nil
}

func (busyLocker) Release(ctx context.Context, key string) (bool, error) {
	return false, nil
}

