package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obadiaz/lyricsbot/internal/session"
)

type fakeBackend struct {
	mu       sync.Mutex
	sessions map[int64]session.Session
	saves    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{sessions: make(map[int64]session.Session)}
}

func (f *fakeBackend) Save(_ context.Context, chatID int64, s session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[chatID] = s
	f.saves++
	return nil
}

func (f *fakeBackend) Load(_ context.Context, chatID int64) (session.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[chatID]
	return s, ok, nil
}

func (f *fakeBackend) Delete(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, chatID)
	return nil
}

func results(n int) []session.Result {
	out := make([]session.Result, n)
	for i := range out {
		out[i] = session.Result{Title: fmt.Sprintf("Song %d", i), URL: fmt.Sprintf("https://genius.com/%d", i)}
	}
	return out
}

func TestSetGetClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := session.NewManager(nil, 0)

	_, ok := m.Get(ctx, 1)
	assert.False(t, ok)

	s := m.Set(ctx, 1, results(3))
	require.NotEmpty(t, s.ID)

	got, ok := m.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)
	assert.Len(t, got.Results, 3)
	assert.Equal(t, "Song 0", got.Results[0].Title)

	m.Clear(ctx, 1)
	_, ok = m.Get(ctx, 1)
	assert.False(t, ok)

	// Clear is idempotent.
	m.Clear(ctx, 1)
}

func TestSetReplacesSessionWholesale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := session.NewManager(nil, 0)

	old := m.Set(ctx, 1, results(5))
	fresh := m.Set(ctx, 1, results(2))
	assert.NotEqual(t, old.ID, fresh.ID)

	got, ok := m.Get(ctx, 1)
	require.True(t, ok)
	assert.Len(t, got.Results, 2, "old results must not merge into the new session")

	_, ok = m.Resolve(ctx, 1, old.ID, 0)
	assert.False(t, ok, "tokens of the replaced session must not resolve")
}

func TestResolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := session.NewManager(nil, 0)
	s := m.Set(ctx, 1, results(3))

	item, ok := m.Resolve(ctx, 1, s.ID, 2)
	require.True(t, ok)
	assert.Equal(t, "Song 2", item.Title)

	_, ok = m.Resolve(ctx, 1, s.ID, 3)
	assert.False(t, ok)
	_, ok = m.Resolve(ctx, 1, s.ID, -1)
	assert.False(t, ok)
	_, ok = m.Resolve(ctx, 2, s.ID, 0)
	assert.False(t, ok, "resolution is scoped by chat")

	m.Clear(ctx, 1)
	_, ok = m.Resolve(ctx, 1, s.ID, 0)
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := session.NewManager(nil, 20*time.Millisecond)
	s := m.Set(ctx, 1, results(1))

	_, ok := m.Get(ctx, 1)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok = m.Get(ctx, 1)
	assert.False(t, ok)
	_, ok = m.Resolve(ctx, 1, s.ID, 0)
	assert.False(t, ok)
}

func TestSetListMessageID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := session.NewManager(nil, 0)
	s := m.Set(ctx, 1, results(1))

	m.SetListMessageID(ctx, 1, s.ID, 77)
	got, ok := m.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, 77, got.ListMessageID)

	// Stale session id is ignored.
	m.SetListMessageID(ctx, 1, "deadbeef", 99)
	got, _ = m.Get(ctx, 1)
	assert.Equal(t, 77, got.ListMessageID)
}

func TestBackendMirrorAndRestore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := newFakeBackend()

	m := session.NewManager(backend, 0)
	s := m.Set(ctx, 1, results(3))

	// A new manager over the same backend sees the session, as after a
	// process restart.
	restarted := session.NewManager(backend, 0)
	got, ok := restarted.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)

	item, ok := restarted.Resolve(ctx, 1, s.ID, 1)
	require.True(t, ok)
	assert.Equal(t, "Song 1", item.Title)

	m.Clear(ctx, 1)
	fresh := session.NewManager(backend, 0)
	_, ok = fresh.Get(ctx, 1)
	assert.False(t, ok)
}

func TestConcurrentChatsDoNotInterfere(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := session.NewManager(nil, 0)

	var wg sync.WaitGroup
	for chat := int64(0); chat < 50; chat++ {
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				s := m.Set(ctx, chatID, results(int(chatID%7) + 1))
				if _, ok := m.Resolve(ctx, chatID, s.ID, 0); !ok {
					// Another iteration of this same goroutine replaced it;
					// impossible here since each chat is one goroutine.
					t.Errorf("chat %d: own session did not resolve", chatID)
					return
				}
			}
		}(chat)
	}
	wg.Wait()

	for chat := int64(0); chat < 50; chat++ {
		got, ok := m.Get(ctx, chat)
		require.True(t, ok)
		assert.Len(t, got.Results, int(chat%7)+1)
	}
}
