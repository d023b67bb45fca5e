package conversations

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/llm"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

// echoInvoker answers with the rendered user prompt so tests can see what the
// summarizer asked for.
type echoInvoker struct {
	calls int
	last  []*schema.Message
	err   error
}

func (e *echoInvoker) Invoke(_ context.Context, msgs []*schema.Message, _ llm.Options) (*schema.Message, error) {
	e.calls++
	e.last = msgs
	if e.err != nil {
		return nil, e.err
	}
	return schema.AssistantMessage(msgs[len(msgs)-1].Content, nil), nil
}

func TestSummarizeKeepsMarkersAcrossExtensions(t *testing.T) {
	inv := &echoInvoker{}
	s := NewSummarizer(inv, llm.Options{Model: "test"}, time.Second)
	ctx := context.Background()

	d1 := []*model.Message{
		model.NewUserMessage("my code name is MARKER_ALPHA"),
		model.NewAssistantMessage("noted", nil),
	}
	first, err := s.Summarize(ctx, "", d1)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !strings.Contains(first, "MARKER_ALPHA") {
		t.Errorf("first summary %q lacks MARKER_ALPHA", first)
	}
	if strings.Contains(inv.last[1].Content, "Extend the summary") {
		t.Errorf("fresh summary used the extension prompt")
	}

	d2 := []*model.Message{
		model.NewUserMessage("the vault number is MARKER_BETA"),
		model.NewAssistantMessage("ok", nil),
	}
	second, err := s.Summarize(ctx, first, d2)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	for _, marker := range []string{"MARKER_ALPHA", "MARKER_BETA"} {
		if !strings.Contains(second, marker) {
			t.Errorf("second summary lacks %s", marker)
		}
	}
	if !strings.Contains(inv.last[1].Content, "Extend the summary") {
		t.Errorf("extension did not use the extension prompt")
	}
	if inv.calls != 2 {
		t.Errorf("invoker calls = %d, want 2", inv.calls)
	}
}

func TestSummarizeNothingDiscarded(t *testing.T) {
	inv := &echoInvoker{}
	s := NewSummarizer(inv, llm.Options{}, time.Second)

	got, err := s.Summarize(context.Background(), "prior", nil)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "prior" {
		t.Errorf("Summarize() = %q, want %q", got, "prior")
	}
	if inv.calls != 0 {
		t.Errorf("invoker calls = %d, want 0", inv.calls)
	}
}

func TestSummarizeInvocationFailure(t *testing.T) {
	s := NewSummarizer(&echoInvoker{err: errors.New("boom")}, llm.Options{}, time.Second)

	_, err := s.Summarize(context.Background(), "", buildLog("ua"))
	if !errx.IsInvocation(err) {
		t.Errorf("Summarize() error = %v, want invocation failure", err)
	}
}

func TestSummarizeWordLimit(t *testing.T) {
	inv := &echoInvoker{}
	s := NewSummarizer(inv, llm.Options{Model: "test"}, time.Second).WithMaxWords(80).WithMaxWords(0)

	if _, err := s.Summarize(context.Background(), "", []*model.Message{model.NewUserMessage("hi")}); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !strings.Contains(inv.last[0].Content, "at most 80 words") {
		t.Errorf("system prompt = %q, want the 80 word limit", inv.last[0].Content)
	}
}
