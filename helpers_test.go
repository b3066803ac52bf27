package auth_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-family-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

const testSigningKey = "test-signing-key-with-at-least-32-bytes"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, e auth.ActivityEvent) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *capturingSink) Types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := auth.OpenDB(auth.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), db, auth.DriverSQLite))
	return db
}

func newTestTokens(t *testing.T, clock auth.Clock) auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenOptions{
		SigningKey: []byte(testSigningKey),
		Issuer:     "family-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		Clock:      clock,
	})
	require.NoError(t, err)
	return tokens
}

var phoneSeq atomic.Int64

// nextPhone returns a distinct valid CN mobile number in E.164 form
func nextPhone() string {
	return fmt.Sprintf("+86138%08d", phoneSeq.Add(1))
}

func createUser(t *testing.T, repos auth.RepositoryManager, nickname string) *auth.User {
	t.Helper()
	user, err := repos.Users().Create(context.Background(), &auth.User{
		Phone:        nextPhone(),
		PasswordHash: "not-a-real-hash",
		Nickname:     nickname,
		Role:         auth.RoleUser,
	})
	require.NoError(t, err)
	return user
}

func reloadUser(t *testing.T, repos auth.RepositoryManager, id uuid.UUID) *auth.User {
	t.Helper()
	user, err := repos.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return user
}

func liveMemberCount(t *testing.T, db *bun.DB, repos auth.RepositoryManager, familyID uuid.UUID) int {
	t.Helper()
	n, err := repos.Users().CountByFamilyTx(context.Background(), db, familyID)
	require.NoError(t, err)
	return n
}

// hasCause reports whether err or one of its sources carries textCode
func hasCause(err error, textCode string) bool {
	for err != nil {
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) || richErr == nil {
			return false
		}
		if richErr.TextCode == textCode {
			return true
		}
		if richErr.Source == err {
			return false
		}
		err = richErr.Source
	}
	return false
}
