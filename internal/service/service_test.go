package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/koor-fr/security-component/internal/cache/memory"
	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/lock"
	"github.com/koor-fr/security-component/internal/metrics"
	"github.com/koor-fr/security-component/internal/pkg/crypto"
	"github.com/koor-fr/security-component/internal/repository"
	"github.com/koor-fr/security-component/internal/repository/sqlite"
)

// =============================================================================
// Test Fixture
// =============================================================================

type fixture struct {
	repos    *repository.Repositories
	cache    *memcache.Cache
	metrics  *metrics.Metrics
	encoder  *crypto.Argon2Encoder
	verifier *CredentialVerifier
	users    *UserService
	roles    *RoleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultOptions(":memory:"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	locker := lock.NewMemoryLocker()
	t.Cleanup(func() { _ = locker.Close() })

	cache := memcache.NewCache()
	t.Cleanup(func() { _ = cache.Close() })

	cfg := DefaultVerifierConfig()
	cfg.Lock = LockPolicy{TTL: 5 * time.Second, Retries: 2000, RetryDelay: 2 * time.Millisecond}

	repos := db.Repositories()
	encoder := crypto.NewArgon2Encoder([]byte("0123456789abcdef0123456789abcdef"), crypto.Argon2Params{
		Time:    1,
		Memory:  1024,
		Threads: 1,
		KeyLen:  32,
	})
	m := metrics.NewMetrics(prometheus.NewRegistry())

	roles := NewRoleService(repos.Role, repos.User, cache, time.Minute, zerolog.Nop())
	verifier := NewCredentialVerifier(repos.User, roles, encoder, locker, m, cfg, zerolog.Nop())
	users := NewUserService(repos.User, roles, encoder, verifier, locker, cfg.Lock, zerolog.Nop())

	return &fixture{
		repos:    repos,
		cache:    cache,
		metrics:  m,
		encoder:  encoder,
		verifier: verifier,
		users:    users,
		roles:    roles,
	}
}

func (f *fixture) register(t *testing.T, login, password string) *domain.User {
	t.Helper()
	user, err := f.users.Create(context.Background(), CreateUserInput{Login: login, Password: password})
	require.NoError(t, err)
	return user
}

func (f *fixture) stored(t *testing.T, id int64) *domain.User {
	t.Helper()
	user, err := f.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return user
}

// =============================================================================
// Credential Verification
// =============================================================================

func TestVerify_UnknownLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "bond", "007")

	user, err := f.users.CheckCredentials(context.Background(), "nobody", "007")
	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.NotErrorIs(t, err, ErrAccountDisabled)
}

func TestVerify_WrongSecretIncrementsByOne(t *testing.T) {
	f := newFixture(t)
	bond := f.register(t, "bond", "007")

	_, err := f.users.CheckCredentials(context.Background(), "bond", "008")
	assert.ErrorIs(t, err, ErrBadCredentials)

	stored := f.stored(t, bond.ID)
	assert.Equal(t, 1, stored.ConsecutiveErrors)
	assert.False(t, stored.Disabled)
	assert.Equal(t, int64(0), stored.ConnectionCount)
}

func TestVerify_ThirdFailureDisables(t *testing.T) {
	f := newFixture(t)
	bond := f.register(t, "bond", "007")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.users.CheckCredentials(ctx, "bond", "wrong")
		require.ErrorIs(t, err, ErrBadCredentials)
	}

	_, err := f.users.CheckCredentials(ctx, "bond", "wrong")
	assert.ErrorIs(t, err, ErrAccountDisabled)

	stored := f.stored(t, bond.ID)
	assert.True(t, stored.Disabled)
	assert.Equal(t, 3, stored.ConsecutiveErrors)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Lockouts))
}

func TestVerify_DisabledWithCorrectSecret(t *testing.T) {
	f := newFixture(t)
	bond := f.register(t, "bond", "007")
	ctx := context.Background()

	require.NoError(t, f.users.SetDisabled(ctx, bond.ID, true))
	before := f.stored(t, bond.ID)

	user, err := f.users.CheckCredentials(ctx, "bond", "007")
	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrAccountDisabled)

	after := f.stored(t, bond.ID)
	assert.Equal(t, before.ConnectionCount, after.ConnectionCount)
	assert.Equal(t, before.ConsecutiveErrors, after.ConsecutiveErrors)
	assert.Equal(t, before.LastConnectionAt, after.LastConnectionAt)
	assert.True(t, after.Disabled)
}

func TestVerify_SuccessUpdatesCountersAndLoadsRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bond := f.register(t, "bond", "007")

	agent, err := f.roles.Create(ctx, "agent")
	require.NoError(t, err)
	admin, err := f.roles.Create(ctx, "admin")
	require.NoError(t, err)
	_, err = f.roles.Create(ctx, "guest")
	require.NoError(t, err)
	require.NoError(t, f.roles.Assign(ctx, bond.ID, agent.ID))
	require.NoError(t, f.roles.Assign(ctx, bond.ID, admin.ID))

	_, err = f.users.CheckCredentials(ctx, "bond", "wrong")
	require.ErrorIs(t, err, ErrBadCredentials)

	fixed := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	f.verifier.now = func() time.Time { return fixed }

	user, err := f.users.CheckCredentials(ctx, "bond", "007")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, 0, user.ConsecutiveErrors)
	assert.Equal(t, int64(1), user.ConnectionCount)
	assert.True(t, fixed.Equal(user.LastConnectionAt))
	assert.ElementsMatch(t, []int64{agent.ID, admin.ID}, roleIDs(user.Roles))

	stored := f.stored(t, bond.ID)
	assert.Equal(t, 0, stored.ConsecutiveErrors)
	assert.Equal(t, int64(1), stored.ConnectionCount)
	assert.True(t, fixed.Equal(stored.LastConnectionAt))
}

func TestVerify_TwoFailuresThenSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bond := f.register(t, "bond", "007")

	for i := 0; i < 2; i++ {
		_, err := f.users.CheckCredentials(ctx, "bond", "wrong")
		require.ErrorIs(t, err, ErrBadCredentials)
	}

	user, err := f.users.CheckCredentials(ctx, "bond", "007")
	require.NoError(t, err)
	assert.Equal(t, 0, user.ConsecutiveErrors)

	stored := f.stored(t, bond.ID)
	assert.Equal(t, 0, stored.ConsecutiveErrors)
	assert.Equal(t, int64(1), stored.ConnectionCount)
	assert.False(t, stored.Disabled)
}

func TestVerify_ConcurrentFailures(t *testing.T) {
	f := newFixture(t)
	bond := f.register(t, "bond", "007")

	const attempts = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		bad      int
		disabled int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.users.CheckCredentials(context.Background(), "bond", "wrong")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrAccountDisabled):
				disabled++
			case errors.Is(err, ErrBadCredentials):
				bad++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, bad)
	assert.Equal(t, attempts-2, disabled)

	stored := f.stored(t, bond.ID)
	assert.Equal(t, attempts, stored.ConsecutiveErrors)
	assert.True(t, stored.Disabled)
}

func TestVerify_MetricsCountOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "bond", "007")

	_, _ = f.users.CheckCredentials(ctx, "bond", "007")
	_, _ = f.users.CheckCredentials(ctx, "bond", "wrong")
	_, _ = f.users.CheckCredentials(ctx, "ghost", "007")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues(metrics.OutcomeAccepted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues(metrics.OutcomeBadCredentials)))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues(metrics.OutcomeAccountDisabled)))

	var latency dto.Metric
	require.NoError(t, f.metrics.VerifyLatency.Write(&latency))
	assert.Equal(t, uint64(3), latency.GetHistogram().GetSampleCount())
}

// =============================================================================
// Encoder
// =============================================================================

func TestEncryptPassword_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.users.EncryptPassword("007")
	require.NoError(t, err)
	second, err := f.users.EncryptPassword("007")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotEqual(t, "007", first)

	bond := domain.NewUser("bond", first)
	require.NoError(t, f.repos.User.Create(ctx, bond))

	user, err := f.users.CheckCredentials(ctx, "bond", "007")
	require.NoError(t, err)
	assert.Equal(t, bond.ID, user.ID)
}

func TestBondScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bond := f.register(t, "bond", "007")
	mi6, err := f.roles.Create(ctx, "mi6")
	require.NoError(t, err)
	require.NoError(t, f.roles.Assign(ctx, bond.ID, mi6.ID))

	_, err = f.users.CheckCredentials(ctx, "bond", "006")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = f.users.CheckCredentials(ctx, "bond", "005")
	assert.ErrorIs(t, err, ErrBadCredentials)

	user, err := f.users.CheckCredentials(ctx, "bond", "007")
	require.NoError(t, err)
	assert.Equal(t, "bond", user.Login)
	assert.Equal(t, 0, user.ConsecutiveErrors)
	assert.Equal(t, int64(1), user.ConnectionCount)
	assert.True(t, user.IsMemberOfRole(domain.Role{ID: mi6.ID}))
	assert.Len(t, user.Roles, 1)
}

func roleIDs(roles []domain.Role) []int64 {
	ids := make([]int64, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	return ids
}
