package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koor-fr/security-component/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	ctx := context.Background()
	db, err := NewDB(ctx, DefaultOptions(":memory:"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db
}

func createUser(t *testing.T, db *DB, login, hash string) *domain.User {
	t.Helper()
	user := domain.NewUser(login, hash)
	require.NoError(t, db.Repositories().User.Create(context.Background(), user))
	return user
}

func TestDSNAppliesPragmas(t *testing.T) {
	dsn := DefaultOptions("/var/lib/security.db").DSN()
	assert.Contains(t, dsn, "_pragma=foreign_keys%281%29")
	assert.Contains(t, dsn, "_pragma=journal_mode%28wal%29")
	assert.Contains(t, dsn, "_pragma=busy_timeout%285000%29")

	mem := DefaultOptions(":memory:").DSN()
	assert.NotContains(t, mem, "journal_mode")
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))

	provider, err := db.MigrationProvider()
	require.NoError(t, err)
	version, err := provider.GetDBVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestUserCreateAssignsMaxPlusOne(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := db.Repositories().User

	first := createUser(t, db, "bond", "h1")
	second := createUser(t, db, "m", "h2")
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)

	require.NoError(t, users.Delete(ctx, second.ID))
	third := createUser(t, db, "q", "h3")
	assert.Equal(t, int64(2), third.ID)

	dup := domain.NewUser("bond", "other")
	err := users.Create(ctx, dup)
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
}

func TestUserLookups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := db.Repositories().User

	created := domain.NewUser("bond", "encoded-007")
	created.FirstName = "James"
	created.LastName = "Bond"
	created.Email = "james.bond@mi6.uk"
	require.NoError(t, users.Create(ctx, created))

	byID, err := users.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "bond", byID.Login)
	assert.Equal(t, "James Bond", byID.FullName())
	assert.True(t, byID.LastConnectionAt.IsZero())
	assert.NotNil(t, byID.Roles)

	byLogin, err := users.GetByLogin(ctx, "bond")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byLogin.ID)

	byCreds, err := users.GetByCredentials(ctx, "bond", "encoded-007")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byCreds.ID)

	_, err = users.GetByCredentials(ctx, "bond", "wrong")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = users.GetByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = users.GetByID(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	exists, err := users.ExistsByLogin(ctx, "bond")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUserUpdateReplacesRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := db.Repositories().User

	user := createUser(t, db, "bond", "h")
	user.Email = "bond@example.org"
	user.ConnectionCount = 7
	user.LastConnectionAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, users.Update(ctx, user))

	got, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "bond@example.org", got.Email)
	assert.Equal(t, int64(7), got.ConnectionCount)
	assert.True(t, got.LastConnectionAt.Equal(user.LastConnectionAt))

	ghost := domain.NewUser("ghost", "h")
	ghost.ID = 42
	assert.ErrorIs(t, users.Update(ctx, ghost), domain.ErrUserNotFound)
}

func TestRecordConnection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := db.Repositories().User

	user := createUser(t, db, "bond", "h")
	at := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)

	count, err := users.RecordConnection(ctx, user.ID, at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = users.RecordConnection(ctx, user.ID, at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	got, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.LastConnectionAt.Equal(at.Add(time.Minute)))

	require.NoError(t, users.SetDisabled(ctx, user.ID, true))
	_, err = users.RecordConnection(ctx, user.ID, at)
	assert.ErrorIs(t, err, domain.ErrAccountDisabled)

	_, err = users.RecordConnection(ctx, 99, at)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestConsecutiveErrorCounter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := db.Repositories().User

	user := createUser(t, db, "bond", "h")

	for want := 0; want < 3; want++ {
		previous, err := users.IncrementConsecutiveErrors(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, want, previous)
	}

	require.NoError(t, users.ResetConsecutiveErrors(ctx, user.ID))
	got, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ConsecutiveErrors)

	_, err = users.IncrementConsecutiveErrors(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, users.ResetConsecutiveErrors(ctx, 99), domain.ErrUserNotFound)
	assert.ErrorIs(t, users.SetDisabled(ctx, 99, true), domain.ErrUserNotFound)
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := db.Repositories().User

	user := createUser(t, db, "bond", "h")

	const workers = 20
	seen := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			previous, err := users.IncrementConsecutiveErrors(ctx, user.ID)
			if err == nil {
				seen <- previous
			}
		}()
	}
	wg.Wait()
	close(seen)

	distinct := make(map[int]bool)
	for p := range seen {
		distinct[p] = true
	}
	assert.Len(t, distinct, workers)

	got, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.ConsecutiveErrors)
}

func TestRoleCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	roles := db.Repositories().Role

	admin := domain.NewRole("admin")
	require.NoError(t, roles.Create(ctx, admin))
	agent := domain.NewRole("agent")
	require.NoError(t, roles.Create(ctx, agent))
	assert.Equal(t, int64(1), admin.ID)
	assert.Equal(t, int64(2), agent.ID)

	err := roles.Create(ctx, domain.NewRole("admin"))
	assert.ErrorIs(t, err, domain.ErrRoleAlreadyExists)

	byName, err := roles.GetByName(ctx, "agent")
	require.NoError(t, err)
	assert.True(t, byName.Equal(*agent))

	agent.Name = "field-agent"
	require.NoError(t, roles.Update(ctx, agent))
	got, err := roles.GetByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "field-agent", got.Name)

	agent.Name = "admin"
	assert.ErrorIs(t, roles.Update(ctx, agent), domain.ErrAlreadyRegistered)

	all, err := roles.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "admin", all[0].Name)

	exists, err := roles.ExistsByName(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, roles.Delete(ctx, admin.ID))
	_, err = roles.GetByID(ctx, admin.ID)
	assert.ErrorIs(t, err, domain.ErrRoleNotFound)
	assert.ErrorIs(t, roles.Delete(ctx, admin.ID), domain.ErrRoleNotFound)
}

func TestMembership(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repos := db.Repositories()

	bond := createUser(t, db, "bond", "h")
	m := createUser(t, db, "m", "h")
	agent := domain.NewRole("agent")
	require.NoError(t, repos.Role.Create(ctx, agent))
	boss := domain.NewRole("boss")
	require.NoError(t, repos.Role.Create(ctx, boss))

	require.NoError(t, repos.Role.Assign(ctx, bond.ID, agent.ID))
	require.NoError(t, repos.Role.Assign(ctx, bond.ID, agent.ID))
	require.NoError(t, repos.Role.Assign(ctx, m.ID, boss.ID))
	require.NoError(t, repos.Role.Assign(ctx, m.ID, agent.ID))

	ids, err := repos.Role.ListRoleIDsByUser(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{agent.ID, boss.ID}, ids)

	members, err := repos.User.ListByRole(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "bond", members[0].Login)

	require.NoError(t, repos.Role.Revoke(ctx, m.ID, agent.ID))
	require.NoError(t, repos.Role.Revoke(ctx, m.ID, agent.ID))

	require.NoError(t, repos.Role.Delete(ctx, boss.ID))
	ids, err = repos.Role.ListRoleIDsByUser(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repos.User.Delete(ctx, bond.ID))
	members, err = repos.User.ListByRole(ctx, agent.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}
