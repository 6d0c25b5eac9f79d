package usecase

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

type Session struct {
	ID        string
	CreatedAt time.Time

	busy   atomic.Bool
	mu     sync.Mutex
	memory *SessionMemory
}

// acquire marks the session as running a turn. Turns within one session are
// strictly sequential.
func (s *Session) acquire() bool { return s.busy.CompareAndSwap(false, true) }

func (s *Session) release() { s.busy.Store(false) }

func (s *Session) History() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory.Messages()
}

func (s *Session) remember(messages ...domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory.Append(messages...)
}

// SessionStore keeps process-resident sessions, evicting the least recently
// used one past maxSessions.
type SessionStore struct {
	sessions    *lru.Cache[string, *Session]
	counter     ports.TokenCounter
	memoryLimit int
	now         func() time.Time
}

func NewSessionStore(counter ports.TokenCounter, maxSessions, memoryLimit int) (*SessionStore, error) {
	if counter == nil {
		return nil, errors.New("session store: token counter is required")
	}
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	cache, err := lru.New[string, *Session](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	return &SessionStore{
		sessions:    cache,
		counter:     counter,
		memoryLimit: memoryLimit,
		now:         time.Now,
	}, nil
}

func (s *SessionStore) Create() *Session {
	session := &Session{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
		memory:    NewSessionMemory(s.counter, s.memoryLimit),
	}
	s.sessions.Add(session.ID, session)
	return session
}

func (s *SessionStore) Get(id string) (*Session, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id=%s", id))
	}
	return session, nil
}

func (s *SessionStore) Remove(id string) error {
	if !s.sessions.Remove(id) {
		return domain.WrapError(domain.ErrSessionNotFound, "remove session", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (s *SessionStore) Len() int { return s.sessions.Len() }
