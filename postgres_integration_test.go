//go:build integration

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-family-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

func newPostgresDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("family"),
		postgres.WithUsername("family"),
		postgres.WithPassword("family"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := auth.OpenDB(auth.DriverPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, auth.Migrate(ctx, db, auth.DriverPostgres))
	return db
}

func TestPostgresMembershipLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	repos := auth.NewRepositoryManager(db, nil)
	m := auth.NewMembershipCoordinator(repos)

	admin := createUser(t, repos, "admin")
	family, err := m.CreateFamily(ctx, admin.ID, "Smiths")
	require.NoError(t, err)

	other := auth.NewMembershipCoordinator(repos)
	users := make([]*auth.User, 8)
	for i := range users {
		users[i] = createUser(t, repos, "member")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users)*2)
	for i, u := range users {
		for j, coord := range []*auth.MembershipCoordinator{m, other} {
			wg.Add(1)
			go func(idx int, c *auth.MembershipCoordinator, u *auth.User) {
				defer wg.Done()
				_, errs[idx] = c.JoinFamily(ctx, u.ID, family.InviteCode)
			}(i*2+j, coord, u)
		}
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
			continue
		}
		assert.Equal(t, auth.KindConflict, auth.KindOf(err), err.Error())
	}
	assert.Equal(t, len(users), joined, "each user joins exactly once")

	view, err := m.MyFamily(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, len(users)+1, view.MemberCount)
	assert.Equal(t, view.MemberCount, liveMemberCount(t, db, repos, family.ID))

	for _, u := range users {
		_, err := m.LeaveFamily(ctx, u.ID)
		require.NoError(t, err)
	}

	res, err := m.LeaveFamily(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, res.Dissolved)

	_, err = m.PreviewInvite(ctx, family.InviteCode)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInviteCodeInvalid))
}

func TestPostgresDuplicatePhoneIsConflict(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	repos := auth.NewRepositoryManager(db, nil)
	users := auth.NewUserProvider(repos.Users(), auth.NewBcryptHasher(bcrypt.MinCost))

	req := auth.RegisterRequest{Phone: "13800138500", Password: "secret123", ConfirmPassword: "secret123"}
	_, err := users.RegisterUser(ctx, req)
	require.NoError(t, err)

	_, err = users.RegisterUser(ctx, req)
	require.Error(t, err)
	assert.Equal(t, auth.KindConflict, auth.KindOf(err))
	assert.True(t, auth.HasTextCode(err, auth.TextCodeUserExists))
}

func TestPostgresJoinAfterDissolution(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	repos := auth.NewRepositoryManager(db, nil)
	m := auth.NewMembershipCoordinator(repos)

	admin := createUser(t, repos, "admin")
	joiner := createUser(t, repos, "joiner")
	family, err := m.CreateFamily(ctx, admin.ID, "Fleeting")
	require.NoError(t, err)

	// the admin dissolves the family after the join found it but before the
	// join counts itself in
	racing := newRacingRepos(repos)
	racing.families.beforeIncrement = func() {
		res, err := m.LeaveFamily(ctx, admin.ID)
		require.NoError(t, err)
		assert.True(t, res.Dissolved)
	}

	_, err = auth.NewMembershipCoordinator(racing).JoinFamily(ctx, joiner.ID, family.InviteCode)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInviteCodeInvalid))

	assert.False(t, reloadUser(t, repos, joiner.ID).InFamily(), "the joiner stays unaffiliated")
	_, err = repos.Families().GetByID(ctx, family.ID)
	assert.Equal(t, auth.KindNotFound, auth.KindOf(err))
}

func TestPostgresAdminLeaveAfterJoin(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	repos := auth.NewRepositoryManager(db, nil)
	m := auth.NewMembershipCoordinator(repos)

	admin := createUser(t, repos, "admin")
	joiner := createUser(t, repos, "joiner")
	family, err := m.CreateFamily(ctx, admin.ID, "Crowded")
	require.NoError(t, err)

	// a member joins after the admin read a member count of one but before
	// the family row is deleted
	racing := newRacingRepos(repos)
	racing.families.beforeSoleDelete = func() {
		_, err := m.JoinFamily(ctx, joiner.ID, family.InviteCode)
		require.NoError(t, err)
	}

	_, err = auth.NewMembershipCoordinator(racing).LeaveFamily(ctx, admin.ID)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeAdminMustTransfer))

	reloaded := reloadUser(t, repos, admin.ID)
	require.True(t, reloaded.InFamily())
	assert.Equal(t, auth.FamilyRoleAdmin, reloaded.FamilyRole)

	view, err := m.MyFamily(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.MemberCount)
	assert.Equal(t, 2, liveMemberCount(t, db, repos, family.ID))
}

func TestPostgresAdminLeaveRacingJoin(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	repos := auth.NewRepositoryManager(db, nil)
	leaving := auth.NewMembershipCoordinator(repos)
	joining := auth.NewMembershipCoordinator(repos)

	for round := 0; round < 20; round++ {
		admin := createUser(t, repos, "admin")
		joiner := createUser(t, repos, "joiner")
		family, err := leaving.CreateFamily(ctx, admin.ID, "Contested")
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			leaveRes *auth.LeaveResult
			leaveErr error
			joinErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			leaveRes, leaveErr = leaving.LeaveFamily(ctx, admin.ID)
		}()
		go func() {
			defer wg.Done()
			_, joinErr = joining.JoinFamily(ctx, joiner.ID, family.InviteCode)
		}()
		wg.Wait()

		if joinErr == nil {
			// the join won: the admin is still bound to a family of two
			require.Error(t, leaveErr, "round %d", round)
			assert.True(t, auth.HasTextCode(leaveErr, auth.TextCodeAdminMustTransfer), leaveErr.Error())
			assert.True(t, reloadUser(t, repos, admin.ID).InFamily())
			assert.Equal(t, 2, liveMemberCount(t, db, repos, family.ID))
			fam, err := repos.Families().GetByID(ctx, family.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, fam.MemberCount)
			continue
		}

		// the leave won: the family is gone and the joiner stays unaffiliated
		require.NoError(t, leaveErr, "round %d", round)
		assert.True(t, leaveRes.Dissolved)
		assert.True(t, auth.HasTextCode(joinErr, auth.TextCodeInviteCodeInvalid), joinErr.Error())
		assert.False(t, reloadUser(t, repos, joiner.ID).InFamily())
		_, err = repos.Families().GetByID(ctx, family.ID)
		assert.Equal(t, auth.KindNotFound, auth.KindOf(err))
	}
}

