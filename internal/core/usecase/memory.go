package usecase

import (
	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

const DefaultMemoryTokenLimit = 1024

// SessionMemory is a chronological message buffer bounded by a token budget.
// Oldest messages are evicted first. It is not safe for concurrent use.
type SessionMemory struct {
	counter  ports.TokenCounter
	limit    int
	messages []domain.ChatMessage
	total    int
}

func NewSessionMemory(counter ports.TokenCounter, limit int) *SessionMemory {
	if limit <= 0 {
		limit = DefaultMemoryTokenLimit
	}
	return &SessionMemory{counter: counter, limit: limit}
}

func (m *SessionMemory) Append(messages ...domain.ChatMessage) {
	for _, msg := range messages {
		msg.Tokens = m.counter.Count(string(msg.Role) + ": " + msg.Content)
		m.messages = append(m.messages, msg)
		m.total += msg.Tokens
	}
	m.evict()
}

// evict drops from the front until the budget holds and the history does not
// open with an assistant reply whose question is gone.
func (m *SessionMemory) evict() {
	drop := 0
	for drop < len(m.messages) && m.total > m.limit {
		m.total -= m.messages[drop].Tokens
		drop++
	}
	if drop > 0 {
		for drop < len(m.messages) && m.messages[drop].Role == domain.RoleAssistant {
			m.total -= m.messages[drop].Tokens
			drop++
		}
	}
	if drop == 0 {
		return
	}
	m.messages = append([]domain.ChatMessage(nil), m.messages[drop:]...)
}

func (m *SessionMemory) Messages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *SessionMemory) TokenCount() int { return m.total }

func (m *SessionMemory) Limit() int { return m.limit }
