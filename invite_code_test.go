package auth_test

import (
	"context"
	"strings"
	"testing"

	auth "github.com/goliatone/go-family-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomInviteCodeShape(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 500; i++ {
		code, err := auth.RandomInviteCode()
		require.NoError(t, err)
		require.Len(t, code, auth.InviteCodeLength)
		for _, r := range code {
			require.True(t, strings.ContainsRune(auth.InviteCodeAlphabet, r), "unexpected symbol %q in %s", r, code)
		}
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 490)
}

func TestInviteCodeAlphabetOmitsAmbiguousSymbols(t *testing.T) {
	for _, r := range "01IO" {
		assert.False(t, strings.ContainsRune(auth.InviteCodeAlphabet, r))
	}
	assert.Len(t, auth.InviteCodeAlphabet, 32)
}

func TestNormalizeInviteCode(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "A7K2XZ", want: "A7K2XZ", wantOK: true},
		{in: " a7k2xz ", want: "A7K2XZ", wantOK: true},
		{in: "FAMILY_INVITE:A7K2XZ", want: "A7K2XZ", wantOK: true},
		{in: "family_invite:a7k2xz", want: "A7K2XZ", wantOK: true},
		{in: "A7K2X", want: "A7K2X"},
		{in: "A7K2XZZ", want: "A7K2XZZ"},
		{in: "A7K2X0", want: "A7K2X0"},
		{in: "AIK2XZ", want: "AIK2XZ"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := auth.NormalizeInviteCode(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestInviteQRContent(t *testing.T) {
	assert.Equal(t, "FAMILY_INVITE:A7K2XZ", auth.InviteQRContent("A7K2XZ"))
}

// sequenceSource replays codes in order, repeating the last one.
func sequenceSource(codes ...string) (auth.CodeSource, *int) {
	calls := 0
	return func() (string, error) {
		i := calls
		calls++
		if i >= len(codes) {
			i = len(codes) - 1
		}
		return codes[i], nil
	}, &calls
}

func TestCreateFamilyRetriesOnInviteCodeCollision(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repos := auth.NewRepositoryManager(db, nil)

	first, _ := sequenceSource("AAAAAA")
	m1 := auth.NewMembershipCoordinator(repos, auth.WithInviteCodeSource(first))
	u1 := createUser(t, repos, "one")
	f1, err := m1.CreateFamily(ctx, u1.ID, "First")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", f1.InviteCode)

	source, calls := sequenceSource("AAAAAA", "AAAAAA", "BBBBBB")
	m2 := auth.NewMembershipCoordinator(repos, auth.WithInviteCodeSource(source))
	u2 := createUser(t, repos, "two")
	f2, err := m2.CreateFamily(ctx, u2.ID, "Second")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", f2.InviteCode)
	assert.Equal(t, 3, *calls)
}

func TestCreateFamilyGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repos := auth.NewRepositoryManager(db, nil)

	taken, _ := sequenceSource("CCCCCC")
	seed := auth.NewMembershipCoordinator(repos, auth.WithInviteCodeSource(taken))
	_, err := seed.CreateFamily(ctx, createUser(t, repos, "seed").ID, "Seed")
	require.NoError(t, err)

	logger := &recordingLogger{}
	source, calls := sequenceSource("CCCCCC")
	m := auth.NewMembershipCoordinator(repos,
		auth.WithInviteCodeSource(source),
		auth.WithMembershipLogger(logger),
	)

	user := createUser(t, repos, "unlucky")
	_, err = m.CreateFamily(ctx, user.ID, "Unlucky")
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInviteCodeExhausted))
	assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	assert.Equal(t, auth.MaxInviteCodeAttempts, *calls)
	assert.NotEmpty(t, logger.Warnings())

	assert.False(t, reloadUser(t, repos, user.ID).InFamily(), "failed creation leaves the user unaffiliated")
}

func TestCreateFamilyHonoursCustomAttemptLimit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repos := auth.NewRepositoryManager(db, nil)

	taken, _ := sequenceSource("DDDDDD")
	seed := auth.NewMembershipCoordinator(repos, auth.WithInviteCodeSource(taken))
	_, err := seed.CreateFamily(ctx, createUser(t, repos, "seed").ID, "Seed")
	require.NoError(t, err)

	source, calls := sequenceSource("DDDDDD")
	m := auth.NewMembershipCoordinator(repos,
		auth.WithInviteCodeSource(source),
		auth.WithInviteCodeAttempts(5),
	)
	_, err = m.CreateFamily(ctx, createUser(t, repos, "other").ID, "Other")
	require.Error(t, err)
	assert.Equal(t, 5, *calls)
}
