// Package session is the per-chat store for search results. Every chat owns
// at most one Session; a new search replaces it wholesale. Each session
// carries a short random id that callback tokens embed, so buttons from a
// replaced or expired session can never resolve against a newer one.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obadiaz/lyricsbot/internal/logger"
)

// Result is one search hit: display title, the lyrics page URL used to fetch
// content, and an optional thumbnail. Immutable once stored.
type Result struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Session holds one chat's current result set in provider order.
type Session struct {
	ID            string    `json:"id"`
	Results       []Result  `json:"results"`
	ListMessageID int       `json:"list_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Backend mirrors sessions to external storage so they can survive a process
// restart. Mirroring is best-effort: backend failures are logged, never
// surfaced to the user flow.
type Backend interface {
	Save(ctx context.Context, chatID int64, s Session) error
	Load(ctx context.Context, chatID int64) (Session, bool, error)
	Delete(ctx context.Context, chatID int64) error
}

// Manager guards the in-memory session map. Safe for concurrent use across
// chats; writes for the same chat are serialized by the mutex.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	backend  Backend
	ttl      time.Duration
}

// NewManager creates a session manager. backend may be nil for pure
// in-memory operation; ttl <= 0 disables time-based expiry.
func NewManager(backend Backend, ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[int64]Session),
		backend:  backend,
		ttl:      ttl,
	}
}

// Set replaces the chat's session with a fresh one holding the given results
// and returns it. Provider order is preserved.
func (m *Manager) Set(ctx context.Context, chatID int64, results []Result) Session {
	s := Session{
		ID:        uuid.NewString()[:8],
		Results:   append([]Result(nil), results...),
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[chatID] = s
	m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Save(ctx, chatID, s); err != nil {
			logger.Error("failed to mirror session", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
	return s
}

// Get returns the chat's current session. An expired session counts as
// absent and is dropped. On a memory miss the backend is consulted, which
// restores sessions after a restart.
func (m *Manager) Get(ctx context.Context, chatID int64) (Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[chatID]
	m.mu.RUnlock()

	if !ok && m.backend != nil {
		loaded, found, err := m.backend.Load(ctx, chatID)
		if err != nil {
			logger.Error("failed to load mirrored session", zap.Int64("chat_id", chatID), zap.Error(err))
		} else if found {
			m.mu.Lock()
			// Another goroutine may have stored a fresh session meanwhile;
			// the fresh one wins.
			if current, exists := m.sessions[chatID]; exists {
				s, ok = current, true
			} else {
				m.sessions[chatID] = loaded
				s, ok = loaded, true
			}
			m.mu.Unlock()
		}
	}

	if !ok {
		return Session{}, false
	}
	if m.expired(s) {
		m.Clear(ctx, chatID)
		return Session{}, false
	}
	return s, true
}

// Clear drops the chat's session. Idempotent.
func (m *Manager) Clear(ctx context.Context, chatID int64) {
	m.mu.Lock()
	delete(m.sessions, chatID)
	m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Delete(ctx, chatID); err != nil {
			logger.Error("failed to delete mirrored session", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

// SetListMessageID records the message carrying the rendered result list so
// navigation can edit it in place. A no-op when the session was replaced
// since sessionID was handed out.
func (m *Manager) SetListMessageID(ctx context.Context, chatID int64, sessionID string, messageID int) {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	if !ok || s.ID != sessionID {
		m.mu.Unlock()
		return
	}
	s.ListMessageID = messageID
	m.sessions[chatID] = s
	m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Save(ctx, chatID, s); err != nil {
			logger.Error("failed to mirror session", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

// Resolve maps a (session id, item index) pair from a callback token back to
// the stored result. The bool is false for a stale session id, an expired or
// cleared session, or an out-of-range index.
func (m *Manager) Resolve(ctx context.Context, chatID int64, sessionID string, index int) (Result, bool) {
	s, ok := m.Get(ctx, chatID)
	if !ok || s.ID != sessionID {
		return Result{}, false
	}
	if index < 0 || index >= len(s.Results) {
		return Result{}, false
	}
	return s.Results[index], true
}

func (m *Manager) expired(s Session) bool {
	return m.ttl > 0 && time.Since(s.CreatedAt) > m.ttl
}
