// Package storage provides message history storage for agent pairs.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - History window enforced by the store, never by callers
// - Each implementation encapsulates its own data structures and protocols

package storage

import (
	"context"

	"github.com/ElectronicaGitHub/agented-io/model"
)

// RootParent is the parent key used for the root agent's own history.
const RootParent = "main"

// DefaultWindow is the number of messages kept per pair when no window is given.
const DefaultWindow = 15

// MessageStore keeps the bounded history of every (parent, child) pair.
type MessageStore interface {
	// Append adds messages to the history of the pair, dropping the oldest
	// entries once the window is exceeded. Messages without an ID get one.
	Append(ctx context.Context, parent, child string, msgs ...model.Message) error

	// Read returns the history of the pair, oldest first.
	// Returns empty slice (not nil) if the pair has no history.
	Read(ctx context.Context, parent, child string) ([]model.Message, error)

	// Clear removes the history of the pair.
	Clear(ctx context.Context, parent, child string) error
}

type pairKey struct {
	parent string
	child  string
}
