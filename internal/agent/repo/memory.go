package repo

import (
	"context"
	"sync"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
)

// MemoryStateRepository keeps states in process. Used by the CLI when no redis
// is configured, and by tests.
type MemoryStateRepository struct {
	mu     sync.Mutex
	states map[string]*model.ConversationState
	// locks maps a conversation to the generation of the lock holding it.
	locks map[string]uint64
	gen   uint64
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		states: map[string]*model.ConversationState{},
		locks:  map[string]uint64{},
	}
}

func (r *MemoryStateRepository) Load(_ context.Context, conversationID string) (*model.ConversationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[conversationID]; ok {
		return st.Clone(), nil
	}
	return model.NewConversationState(conversationID), nil
}

func (r *MemoryStateRepository) Save(_ context.Context, state *model.ConversationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.ConversationID] = state.Clone()
	return nil
}

func (r *MemoryStateRepository) Clear(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, conversationID)
	return nil
}

func (r *MemoryStateRepository) Lock(_ context.Context, conversationID string) (model.TurnLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.locks[conversationID]; held {
		return nil, model.ErrTurnInFlight
	}
	r.gen++
	r.locks[conversationID] = r.gen
	return &memoryTurnLock{r: r, conversationID: conversationID, gen: r.gen}, nil
}

// memoryTurnLock never expires; it is lost only when released.
type memoryTurnLock struct {
	r              *MemoryStateRepository
	conversationID string
	gen            uint64
}

func (l *memoryTurnLock) held() bool {
	gen, ok := l.r.locks[l.conversationID]
	return ok && gen == l.gen
}

func (l *memoryTurnLock) Save(_ context.Context, state *model.ConversationState) error {
	l.r.mu.Lock()
	defer l.r.mu.Unlock()
	if !l.held() || state.ConversationID != l.conversationID {
		return model.ErrLockLost
	}
	l.r.states[state.ConversationID] = state.Clone()
	return nil
}

func (l *memoryTurnLock) Release(context.Context) error {
	l.r.mu.Lock()
	defer l.r.mu.Unlock()
	if l.held() {
		delete(l.r.locks, l.conversationID)
	}
	return nil
}

var _ model.StateRepository = (*MemoryStateRepository)(nil)
