// Package storage provides in-memory message storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral trees

package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ElectronicaGitHub/agented-io/model"
)

// MemoryStore implements MessageStore using an in-memory map.
// Data is lost when process terminates.
type MemoryStore struct {
	mu     sync.RWMutex
	window int
	pairs  map[pairKey][]model.Message
}

// NewMemoryStore creates an in-memory store keeping at most window messages
// per pair. A non-positive window falls back to DefaultWindow.
func NewMemoryStore(window int) *MemoryStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryStore{
		window: window,
		pairs:  make(map[pairKey][]model.Message),
	}
}

// Append adds messages to the pair's history.
func (s *MemoryStore) Append(ctx context.Context, parent, child string, msgs ...model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{parent, child}
	history := s.pairs[key]
	for _, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		history = append(history, m)
	}
	if over := len(history) - s.window; over > 0 {
		// Copy so the dropped prefix can be collected.
		history = append([]model.Message(nil), history[over:]...)
	}
	s.pairs[key] = history
	return nil
}

// Read returns a copy of the pair's history.
func (s *MemoryStore) Read(ctx context.Context, parent, child string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.pairs[pairKey{parent, child}]
	copied := make([]model.Message, len(history))
	copy(copied, history)
	return copied, nil
}

// Clear removes the pair's history.
func (s *MemoryStore) Clear(ctx context.Context, parent, child string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pairs, pairKey{parent, child})
	return nil
}
