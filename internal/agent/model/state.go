package model

import "github.com/cloudwego/eino/schema"

// ConversationState is the engine-owned view of one conversation thread.
//
// Log is append-only: messages are never mutated or physically removed from it.
// Live holds the ids of the messages that are still part of the active
// conversation, in chronological order. Reduction and summarization compute a new
// Live set instead of rewriting history, so the full log remains auditable.
type ConversationState struct {
	ConversationID   string            `json:"conversation_id"`
	Log              []*Message        `json:"log"`
	Live             []string          `json:"live"`
	Summary          string            `json:"summary,omitempty"`
	RetrievedContext map[string]string `json:"retrieved_context,omitempty"`
	Turns            int               `json:"turns"`
}

func NewConversationState(conversationID string) *ConversationState {
	return &ConversationState{
		ConversationID:   conversationID,
		RetrievedContext: map[string]string{},
	}
}

// Messages returns the live messages in chronological order.
func (s *ConversationState) Messages() []*Message {
	if s == nil || len(s.Live) == 0 {
		return nil
	}
	byID := make(map[string]*Message, len(s.Log))
	for _, m := range s.Log {
		byID[m.ID] = m
	}
	out := make([]*Message, 0, len(s.Live))
	for _, id := range s.Live {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of live messages.
func (s *ConversationState) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Live)
}

// Append adds msgs to the log and marks them live.
func (s *ConversationState) Append(msgs ...*Message) {
	for _, m := range msgs {
		if m == nil {
			continue
		}
		s.Log = append(s.Log, m)
		s.Live = append(s.Live, m.ID)
	}
}

// Remove logically deletes the messages with the given ids.
func (s *ConversationState) Remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	live := make([]string, 0, len(s.Live))
	for _, id := range s.Live {
		if _, ok := drop[id]; !ok {
			live = append(live, id)
		}
	}
	s.Live = live
}

// SetContext stores the latest retrieval result for a provider, replacing any prior value.
func (s *ConversationState) SetContext(provider, text string) {
	if s.RetrievedContext == nil {
		s.RetrievedContext = map[string]string{}
	}
	s.RetrievedContext[provider] = text
}

// DropContext removes a provider's retrieval entry.
func (s *ConversationState) DropContext(provider string) {
	delete(s.RetrievedContext, provider)
}

// HasAssistantTurn reports whether the assistant ever answered in this
// conversation. Messages removed by reduction or summarization still count.
func (s *ConversationState) HasAssistantTurn() bool {
	if s.Turns > 0 {
		return true
	}
	for _, m := range s.Log {
		if m.Role() == schema.Assistant {
			return true
		}
	}
	return false
}

// LatestUserMessage returns the most recent live user message, or nil.
func (s *ConversationState) LatestUserMessage() *Message {
	msgs := s.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsUser() {
			return msgs[i]
		}
	}
	return nil
}

// Clone returns a copy whose slices and maps can be changed without touching s.
// Messages are shared since they are immutable.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := &ConversationState{
		ConversationID:   s.ConversationID,
		Log:              append([]*Message(nil), s.Log...),
		Live:             append([]string(nil), s.Live...),
		Summary:          s.Summary,
		RetrievedContext: make(map[string]string, len(s.RetrievedContext)),
		Turns:            s.Turns,
	}
	for k, v := range s.RetrievedContext {
		c.RetrievedContext[k] = v
	}
	return c
}
