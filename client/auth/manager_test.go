package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"idPhoto/client/apperrors"
	"idPhoto/client/dto"
	"idPhoto/client/models"
	"idPhoto/client/token"
)

type mockAuthenticator struct {
	mu     sync.Mutex
	calls  int
	err    error
	tokens []string
}

func (m *mockAuthenticator) Login(_ context.Context, username, password string) (*dto.LoginResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	tok := "fresh"
	if len(m.tokens) > 0 {
		tok = m.tokens[0]
		m.tokens = m.tokens[1:]
	}
	return &dto.LoginResponse{AccessToken: tok}, nil
}

func (m *mockAuthenticator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestManager(t *testing.T, authn Authenticator) (*Manager, *token.MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	store := token.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC))
	cfg := Config{Username: "svc", Password: "secret"}
	return NewManager(store, authn, cfg, clock, zaptest.NewLogger(t)), store, clock
}

func TestEnsureValid_FreshCredentialNoNetwork(t *testing.T) {
	for _, remaining := range []time.Duration{30*time.Minute + time.Second, 45 * time.Minute, 59 * time.Minute} {
		authn := &mockAuthenticator{}
		m, store, clock := newTestManager(t, authn)
		stored := models.Credential{Token: "stored", ExpiresAt: clock.Now().Add(remaining)}
		require.NoError(t, store.Save(context.Background(), stored))

		got, err := m.EnsureValid(context.Background())

		require.NoError(t, err)
		assert.Equal(t, stored, got)
		assert.Equal(t, 0, authn.Calls(), "remaining %s", remaining)
	}
}

func TestEnsureValid_ExpiredCredentialRefreshesOnce(t *testing.T) {
	for _, age := range []time.Duration{0, time.Second, 3 * time.Hour} {
		authn := &mockAuthenticator{}
		m, store, clock := newTestManager(t, authn)
		require.NoError(t, store.Save(context.Background(), models.Credential{Token: "old", ExpiresAt: clock.Now().Add(-age)}))

		got, err := m.EnsureValid(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, authn.Calls())
		assert.Equal(t, "fresh", got.Token)
		assert.Equal(t, clock.Now().Add(time.Hour), got.ExpiresAt)

		saved, _ := store.Load(context.Background())
		assert.Equal(t, got, *saved)
	}
}

func TestEnsureValid_WithinMarginRefreshes(t *testing.T) {
	authn := &mockAuthenticator{}
	m, store, clock := newTestManager(t, authn)
	require.NoError(t, store.Save(context.Background(), models.Credential{Token: "old", ExpiresAt: clock.Now().Add(29 * time.Minute)}))

	got, err := m.EnsureValid(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Token)
	assert.Equal(t, 1, authn.Calls())
}

func TestEnsureValid_NoCredential(t *testing.T) {
	authn := &mockAuthenticator{}
	m, _, _ := newTestManager(t, authn)

	got, err := m.EnsureValid(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Token)
	assert.Equal(t, 1, authn.Calls())
}

func TestEnsureValid_FailureLeavesStoredCredential(t *testing.T) {
	authn := &mockAuthenticator{err: errors.New("auth endpoint down")}
	m, store, clock := newTestManager(t, authn)
	stale := models.Credential{Token: "stale", ExpiresAt: clock.Now().Add(10 * time.Minute)}
	require.NoError(t, store.Save(context.Background(), stale))

	_, err := m.EnsureValid(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAuth))
	saved, _ := store.Load(context.Background())
	assert.Equal(t, stale, *saved)
}

func TestInvalidate_ForcesReauthentication(t *testing.T) {
	authn := &mockAuthenticator{tokens: []string{"first", "second"}}
	m, _, _ := newTestManager(t, authn)

	first, err := m.EnsureValid(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Invalidate(context.Background()))
	second, err := m.EnsureValid(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "first", first.Token)
	assert.Equal(t, "second", second.Token)
	assert.Equal(t, 2, authn.Calls())
}

func TestEnsureValid_ConcurrentCallsLastWriteWins(t *testing.T) {
	authn := &mockAuthenticator{}
	m, store, _ := newTestManager(t, authn)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.EnsureValid(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, authn.Calls(), 1)
	saved, _ := store.Load(context.Background())
	require.NotNil(t, saved)
	assert.Equal(t, "fresh", saved.Token)
}

func TestRun_RefreshesOnSchedule(t *testing.T) {
	authn := &mockAuthenticator{}
	m, store, clock := newTestManager(t, authn)
	require.NoError(t, store.Save(context.Background(), models.Credential{Token: "stored", ExpiresAt: clock.Now().Add(50 * time.Minute)}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	assert.Equal(t, 0, authn.Calls())

	clock.Advance(30 * time.Minute)

	assert.Eventually(t, func() bool { return authn.Calls() == 1 }, time.Second, 5*time.Millisecond)
	saved, _ := store.Load(context.Background())
	assert.Equal(t, "fresh", saved.Token)
}

func TestRun_StopsOnCancel(t *testing.T) {
	authn := &mockAuthenticator{}
	m, _, _ := newTestManager(t, authn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
