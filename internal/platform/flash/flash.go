// Package flash queues one-shot messages for staff, the API equivalent of
// the console messages shown after an import or bulk delete.
package flash

import (
	"context"
	"sync"
	"time"
)

const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Message is one line of feedback.
type Message struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func New(level, text string) Message {
	return Message{Level: level, Text: text, CreatedAt: time.Now().UTC()}
}

// Store keeps messages per user until they are read.
type Store interface {
	Push(ctx context.Context, user string, msgs ...Message) error
	// Pop returns the queued messages oldest first and clears the queue.
	Pop(ctx context.Context, user string) ([]Message, error)
}

// MemoryStore is a process-local Store. Messages are lost on restart and are
// not shared between instances; use RedisStore when running more than one.
type MemoryStore struct {
	mu    sync.Mutex
	queue map[string][]Message
	limit int
}

// NewMemoryStore keeps at most limit messages per user, dropping the oldest.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemoryStore{queue: make(map[string][]Message), limit: limit}
}

// DefaultLimit bounds a user's queue. A 1000-row import with every row
// failing produces 1001 messages.
const DefaultLimit = 2000

func (s *MemoryStore) Push(_ context.Context, user string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q := append(s.queue[user], msgs...)
	if len(q) > s.limit {
		q = q[len(q)-s.limit:]
	}
	s.queue[user] = q
	return nil
}

func (s *MemoryStore) Pop(_ context.Context, user string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue[user]
	delete(s.queue, user)
	return q, nil
}
