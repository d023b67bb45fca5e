// Package host drives the engine for one conversation: it owns persistence and
// makes sure only one turn per conversation is in flight.
package host

import (
	"context"
	"strings"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// TurnRunner is the engine capability a session needs.
type TurnRunner interface {
	Run(ctx context.Context, state *model.ConversationState, rc model.RunContext, incoming *model.Message) (*model.TurnResult, error)
}

// Session is one conversation thread with a fixed run context.
type Session struct {
	engine         TurnRunner
	repo           model.StateRepository
	conversationID string
	run            model.RunContext
}

func NewSession(engine TurnRunner, repo model.StateRepository, conversationID string, rc model.RunContext) *Session {
	return &Session{engine: engine, repo: repo, conversationID: conversationID, run: rc}
}

func (s *Session) ConversationID() string { return s.conversationID }

func (s *Session) RunContext() model.RunContext { return s.run }

// SetRunContext changes the run context used by later turns.
func (s *Session) SetRunContext(rc model.RunContext) error {
	rc, err := rc.Canonical()
	if err != nil {
		return err
	}
	s.run = rc
	return nil
}

// Send runs one user turn: lock, load, process, and save only when the turn succeeded.
func (s *Session) Send(ctx context.Context, text string) (*model.TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errx.Configuration("message is empty")
	}

	lock, err := s.repo.Lock(ctx, s.conversationID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log := logx.Conversation(s.conversationID)
			log.Warn().Err(err).Msg("failed to release turn lock")
		}
	}()

	state, err := s.repo.Load(ctx, s.conversationID)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Run(ctx, state, s.run, model.NewUserMessage(text))
	if err != nil {
		return nil, err
	}

	// refused when the lock expired mid-turn
	if err := lock.Save(ctx, res.State); err != nil {
		return nil, err
	}
	return res, nil
}

// State returns the stored conversation state.
func (s *Session) State(ctx context.Context) (*model.ConversationState, error) {
	return s.repo.Load(ctx, s.conversationID)
}

// Reset forgets the conversation.
func (s *Session) Reset(ctx context.Context) error {
	return s.repo.Clear(ctx, s.conversationID)
}
