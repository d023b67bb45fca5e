package model

import (
	"context"
	"errors"
)

// ErrTurnInFlight is returned by Lock when another turn holds the conversation.
var ErrTurnInFlight = errors.New("a turn is already in flight for this conversation")

// ErrLockLost is returned by TurnLock.Save when the lock expired or was taken
// over before the turn finished. Nothing is stored.
var ErrLockLost = errors.New("conversation lock lost before the turn was saved")

// StateRepository persists ConversationState between turns on behalf of the host.
type StateRepository interface {
	// Load returns the stored state, or a fresh empty state when none exists.
	Load(ctx context.Context, conversationID string) (*ConversationState, error)

	// Save replaces the stored state unconditionally.
	Save(ctx context.Context, state *ConversationState) error

	// Clear removes all stored state for a conversation.
	Clear(ctx context.Context, conversationID string) error

	// Lock serializes turns per conversation.
	Lock(ctx context.Context, conversationID string) (TurnLock, error)
}

// TurnLock is a held per-conversation lock. It stays held until Release.
type TurnLock interface {
	// Save replaces the stored state only while the lock is still held,
	// otherwise it returns ErrLockLost.
	Save(ctx context.Context, state *ConversationState) error

	// Release gives the lock up. Calling it more than once is harmless.
	Release(ctx context.Context) error
}
