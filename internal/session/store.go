package session

import (
	"sync"

	"chatbridge/internal/constants"
)

// Turn is a single conversation entry, replayed in order as model context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Store keeps per-session conversation history. Histories are bounded to
// MaxSessionHistoryEntries with oldest-first eviction, created lazily, and
// lost on restart by design.
type Store interface {
	GetOrCreate(sessionID string) []Turn
	Append(sessionID string, turn Turn)
	Clear(sessionID string)
	Len(sessionID string) int
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
	maxTurns int
}

// NewStore returns an in-memory store with the default history cap.
func NewStore() Store {
	return NewStoreWithCap(constants.MaxSessionHistoryEntries)
}

// NewStoreWithCap returns an in-memory store with a custom history cap.
func NewStoreWithCap(maxTurns int) Store {
	if maxTurns <= 0 {
		maxTurns = constants.MaxSessionHistoryEntries
	}
	return &memoryStore{
		sessions: make(map[string][]Turn),
		maxTurns: maxTurns,
	}
}

// GetOrCreate returns a copy of the session history, creating the session
// if it does not exist yet. Returning a copy keeps callers from observing
// later mutations.
func (s *memoryStore) GetOrCreate(sessionID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		s.sessions[sessionID] = nil
		return nil
	}
	out := make([]Turn, len(history))
	copy(out, history)
	return out
}

func (s *memoryStore) Append(sessionID string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID], turn)
	if len(history) > s.maxTurns {
		history = history[len(history)-s.maxTurns:]
	}
	s.sessions[sessionID] = history
}

func (s *memoryStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
}

func (s *memoryStore) Len(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions[sessionID])
}
