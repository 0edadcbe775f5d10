package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mamadbah2/equiptrack/internal/config"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/repository/memory"
	"github.com/mamadbah2/equiptrack/internal/repository/sessions"
)

func newTestService(t *testing.T, perMinute int) (*Service, *memory.Store) {
	t.Helper()
	users := memory.NewStore()
	svc := NewService(users, sessions.NewMemoryStore(nil), config.AuthConfig{
		JWTSecret:       "0123456789abcdef0123456789abcdef",
		SessionTTL:      time.Hour,
		SignInPerMinute: perMinute,
	}, nil)
	svc.bcryptCost = bcrypt.MinCost
	return svc, users
}

type eventLog struct {
	mu     sync.Mutex
	events []models.SessionEventType
}

func (l *eventLog) record(e models.SessionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e.Type)
}

func (l *eventLog) types() []models.SessionEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.SessionEventType(nil), l.events...)
}

func TestSignUpSignInSignOut(t *testing.T) {
	svc, users := newTestService(t, 5)
	ctx := context.Background()
	log := &eventLog{}
	unsubscribe := svc.OnSessionChange(log.record)
	defer unsubscribe()

	created, err := svc.SignUp(ctx, "  Ops@Example.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", created.Email)
	assert.NotEmpty(t, created.Token)

	user, err := users.GetUserByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	session, err := svc.SignIn(ctx, "OPS@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)

	current, err := svc.CurrentSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, current.ID)

	require.NoError(t, svc.SignOut(ctx, session.Token))
	_, err = svc.CurrentSession(ctx, session.Token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.CurrentSession(ctx, created.Token)
	assert.NoError(t, err, "other sessions stay valid")

	assert.Equal(t, []models.SessionEventType{models.SessionSignedUp, models.SessionSignedIn, models.SessionSignedOut}, log.types())
}

func TestSignOutEverywhere(t *testing.T) {
	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	first, err := svc.SignUp(ctx, "ops@example.com", "secret1")
	require.NoError(t, err)
	second, err := svc.SignIn(ctx, "ops@example.com", "secret1")
	require.NoError(t, err)
	other, err := svc.SignUp(ctx, "desk@example.com", "secret2")
	require.NoError(t, err)

	require.NoError(t, svc.SignOutEverywhere(ctx, second.Token))
	for _, token := range []string{first.Token, second.Token} {
		_, err = svc.CurrentSession(ctx, token)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	}
	_, err = svc.CurrentSession(ctx, other.Token)
	assert.NoError(t, err, "other accounts keep their sessions")

	assert.ErrorIs(t, svc.SignOutEverywhere(ctx, first.Token), models.ErrUnauthorized)
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "not-an-email", "secret1")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.SignUp(ctx, "ops@example.com", "short")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.SignUp(ctx, "ops@example.com", "secret1")
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "OPS@example.com", "secret2")
	assert.ErrorIs(t, err, models.ErrEmailTaken)
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t, 10)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "ops@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, "ops@example.com", "wrong-password")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.SignIn(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.SignIn(ctx, "", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSignInIsThrottledPerEmail(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "ops@example.com", "secret1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.SignIn(ctx, "ops@example.com", "bad-guess")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	}
	_, err = svc.SignIn(ctx, "ops@example.com", "secret1")
	assert.ErrorIs(t, err, models.ErrRateLimited)

	_, err = svc.SignIn(ctx, "other@example.com", "whatever")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestIdleSignInLimitersAreDropped(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	for i := 0; i < 50; i++ {
		_, err := svc.SignIn(ctx, fmt.Sprintf("guess%d@example.com", i), "whatever")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	}
	for i := 0; i < 2; i++ {
		_, _ = svc.SignIn(ctx, "ops@example.com", "bad-guess")
	}
	assert.Len(t, svc.limiters, 51)

	clock = clock.Add(45 * time.Second)
	_, err := svc.SignIn(ctx, "ops@example.com", "bad-guess")
	assert.ErrorIs(t, err, models.ErrUnauthorized, "one attempt refilled")
	_, err = svc.SignIn(ctx, "ops@example.com", "bad-guess")
	assert.ErrorIs(t, err, models.ErrRateLimited, "still throttled")

	clock = clock.Add(limiterIdle)
	_, err = svc.SignIn(ctx, "late@example.com", "whatever")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Len(t, svc.limiters, 1, "idle limiters swept")
}

func TestCurrentSessionRejectsForeignTokens(t *testing.T) {
	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	_, err := svc.CurrentSession(ctx, "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.CurrentSession(ctx, "not.a.token")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	other := NewService(memory.NewStore(), sessions.NewMemoryStore(nil), config.AuthConfig{JWTSecret: "ffffffffffffffffffffffffffffffff"}, nil)
	other.bcryptCost = bcrypt.MinCost
	session, err := other.SignUp(ctx, "ops@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.CurrentSession(ctx, session.Token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestListenersAreReleased(t *testing.T) {
	svc, _ := newTestService(t, 5)
	ctx := context.Background()
	first, second := &eventLog{}, &eventLog{}

	unsubscribe := svc.OnSessionChange(first.record)
	svc.OnSessionChange(second.record)

	_, err := svc.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()

	_, err = svc.SignUp(ctx, "b@example.com", "secret1")
	require.NoError(t, err)
	assert.Len(t, first.types(), 1)
	assert.Len(t, second.types(), 2)

	svc.Close()
	_, err = svc.SignUp(ctx, "c@example.com", "secret1")
	require.NoError(t, err)
	assert.Len(t, second.types(), 2)

	late := &eventLog{}
	svc.OnSessionChange(late.record)
	_, err = svc.SignUp(ctx, "d@example.com", "secret1")
	require.NoError(t, err)
	assert.Empty(t, late.types())
}
