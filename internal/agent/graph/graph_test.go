package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/nodes"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/llm"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	"github.com/Chative-core-poc-v1/convoengine/internal/agent/providers"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

// scripted answers each model call by the kind of prompt it receives.
type scripted struct {
	mu       sync.Mutex
	converse func(n int, msgs []*schema.Message) (*schema.Message, error)
	summary  string
	queries  string
	calls    map[string]int
}

func (s *scripted) Invoke(_ context.Context, msgs []*schema.Message, _ llm.Options) (*schema.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	system := ""
	if len(msgs) > 0 {
		system = msgs[0].Content
	}
	switch {
	case strings.HasPrefix(system, "You maintain a running summary"):
		s.calls["summary"]++
		return schema.AssistantMessage(s.summary, nil), nil
	case strings.HasPrefix(system, "You write search queries"):
		s.calls["queries"]++
		return schema.AssistantMessage(s.queries, nil), nil
	case strings.HasPrefix(system, "You route a conversational assistant"):
		s.calls["gate"]++
		return schema.AssistantMessage(`{"decision":"answer_from_history"}`, nil), nil
	}
	s.calls["converse"]++
	return s.converse(s.calls["converse"], msgs)
}

func (s *scripted) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func toolCall(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}}})
}

type blockingProvider struct{}

func (blockingProvider) Name() string                { return "wikipedia" }
func (blockingProvider) Style() providers.QueryStyle { return providers.KeywordQuery }
func (blockingProvider) Search(ctx context.Context, _ string) ([]providers.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newEngine(t *testing.T, inv llm.Invoker, ps ...providers.Provider) *Engine {
	t.Helper()
	ctx := context.Background()
	factory := llm.NewRegistry("fake")
	factory.RegisterInvoker("fake", inv)
	reg, err := tools.NewRegistry(ctx, time.Second, tools.Arithmetic()...)
	if err != nil {
		t.Fatalf("tools.NewRegistry() error = %v", err)
	}
	limits := DefaultLimits
	limits.ProviderTimeout = 20 * time.Millisecond
	e, err := New(ctx, Dependencies{
		Factory:   factory,
		Tools:     reg,
		Providers: providers.NewRegistry(ps...),
		Limits:    limits,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func baseRun() model.RunContext {
	return model.RunContext{
		Model:              "fake:test-model",
		Temperature:        0.2,
		MaxTokens:          256,
		Strategy:           model.StrategyKeepAll,
		SummarizeThreshold: 20,
		RetainTail:         2,
		Tools:              model.NameSet{"add", "multiply", "divide"},
		MaxToolIterations:  3,
	}
}

// history returns a greeting followed by pairs user/assistant exchanges.
func history(pairs int) *model.ConversationState {
	st := model.NewConversationState("conv-graph")
	st.Append(model.NewAssistantMessage("Hi, how can I help? MARKER_ALPHA", nil))
	for i := 0; i < pairs; i++ {
		st.Append(
			model.NewUserMessage(fmt.Sprintf("question %d", i)),
			model.NewAssistantMessage(fmt.Sprintf("answer %d", i), nil),
		)
	}
	return st
}

func TestArithmeticToolTurn(t *testing.T) {
	inv := &scripted{converse: func(n int, msgs []*schema.Message) (*schema.Message, error) {
		if n == 1 {
			return toolCall("", "add", `{"a":3,"b":"4"}`), nil
		}
		last := msgs[len(msgs)-1]
		if last.Role != schema.Tool {
			return nil, fmt.Errorf("last message role = %s, want tool", last.Role)
		}
		return schema.AssistantMessage("3 + 4 = 7 ("+last.Content+")", nil), nil
	}}
	e := newEngine(t, inv)
	state := model.NewConversationState("conv-a")

	res, err := e.Run(context.Background(), state, baseRun(), model.NewUserMessage("What is 3 + 4?"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantPath := []string{nodes.NodeSearchDecision, nodes.NodeConverse, nodes.NodeTools, nodes.NodeConverse}
	if !reflect.DeepEqual(res.Path, wantPath) {
		t.Errorf("Path = %v, want %v", res.Path, wantPath)
	}
	if res.Gate.Decision != model.AnswerFromHistory {
		t.Errorf("Decision = %s, want answer_from_history", res.Gate.Decision)
	}

	msgs := res.State.Messages()
	if len(msgs) != 4 {
		t.Fatalf("live messages = %d, want 4", len(msgs))
	}
	request, result := msgs[1], msgs[2]
	if !request.IsToolRequest() || request.ToolCalls[0].ID != "call_1" {
		t.Errorf("tool request = %+v, want a call with synthesized id call_1", request.Message)
	}
	if !result.IsTool() || result.ToolCallID != "call_1" || !strings.Contains(result.Content, `"result":7`) {
		t.Errorf("tool result = %+v, want result 7 answering call_1", result.Message)
	}
	if !strings.Contains(res.Reply.Content, "7") {
		t.Errorf("Reply = %q, want it to contain 7", res.Reply.Content)
	}
	if res.State.Turns != 1 {
		t.Errorf("Turns = %d, want 1", res.State.Turns)
	}
	if state.Len() != 0 || state.Turns != 0 {
		t.Errorf("input state modified: len %d, turns %d", state.Len(), state.Turns)
	}
}

func TestTrimByCountWindow(t *testing.T) {
	var seen []*schema.Message
	inv := &scripted{converse: func(_ int, msgs []*schema.Message) (*schema.Message, error) {
		seen = msgs[1:]
		return schema.AssistantMessage("ok", nil), nil
	}}
	e := newEngine(t, inv)
	rc := baseRun()
	rc.Strategy = model.StrategyTrimCount
	rc.Budget = 10

	state := history(24)
	res, err := e.Run(context.Background(), state, rc, model.NewUserMessage("question 24"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(seen) == 0 || len(seen) > 10 {
		t.Fatalf("window = %d messages, want 1..10", len(seen))
	}
	if seen[0].Role != schema.User {
		t.Errorf("window starts with %s, want user", seen[0].Role)
	}
	if got := seen[len(seen)-1].Content; got != "question 24" {
		t.Errorf("window ends with %q, want the incoming message", got)
	}
	if res.State.Len() != 51 {
		t.Errorf("live messages = %d, want 51 (trimming leaves the live set alone)", res.State.Len())
	}
}

func TestSummarizeAtThreshold(t *testing.T) {
	inv := &scripted{
		summary: "The assistant greeted the user (MARKER_ALPHA) and answered nine questions.",
		converse: func(int, []*schema.Message) (*schema.Message, error) {
			return schema.AssistantMessage("answer 9", nil), nil
		},
	}
	e := newEngine(t, inv)
	rc := baseRun()
	rc.Strategy = model.StrategySummarize

	state := history(9)
	if state.Len() != 19 {
		t.Fatalf("setup: %d messages, want 19", state.Len())
	}

	res, err := e.Run(context.Background(), state, rc, model.NewUserMessage("question 9"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantPath := []string{nodes.NodeSearchDecision, nodes.NodeConverse, nodes.NodeSummarize}
	if !reflect.DeepEqual(res.Path, wantPath) {
		t.Errorf("Path = %v, want %v", res.Path, wantPath)
	}
	if res.State.Len() > rc.RetainTail {
		t.Errorf("live messages = %d, want <= %d", res.State.Len(), rc.RetainTail)
	}
	if !strings.Contains(res.State.Summary, "MARKER_ALPHA") {
		t.Errorf("Summary = %q, want it to keep the marker", res.State.Summary)
	}
	if len(res.State.Log) != 21 {
		t.Errorf("log = %d messages, want 21", len(res.State.Log))
	}
	if inv.calls["summary"] != 1 {
		t.Errorf("summary calls = %d, want 1", inv.calls["summary"])
	}
}

func TestToolCallsBeatSummarize(t *testing.T) {
	inv := &scripted{
		summary: "summary",
		converse: func(n int, _ []*schema.Message) (*schema.Message, error) {
			if n == 1 {
				return toolCall("c1", "multiply", `{"a":6,"b":7}`), nil
			}
			return schema.AssistantMessage("42", nil), nil
		},
	}
	e := newEngine(t, inv)
	rc := baseRun()
	rc.Strategy = model.StrategySummarize

	res, err := e.Run(context.Background(), history(10), rc, model.NewUserMessage("6 * 7?"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantPath := []string{nodes.NodeSearchDecision, nodes.NodeConverse, nodes.NodeTools, nodes.NodeConverse, nodes.NodeSummarize}
	if !reflect.DeepEqual(res.Path, wantPath) {
		t.Errorf("Path = %v, want %v", res.Path, wantPath)
	}
	if res.State.Summary == "" {
		t.Errorf("Summary is empty")
	}
}

func TestIterationCapFailsTurn(t *testing.T) {
	inv := &scripted{converse: func(n int, _ []*schema.Message) (*schema.Message, error) {
		return toolCall(fmt.Sprintf("c%d", n), "add", `{"a":1,"b":1}`), nil
	}}
	e := newEngine(t, inv)
	rc := baseRun()
	rc.MaxToolIterations = 2
	state := history(1)
	before := len(state.Log)

	_, err := e.ProcessTurn(context.Background(), state, rc, model.NewUserMessage("loop forever"))
	if !errx.IsInvocation(err) || !errors.Is(err, errx.ErrIterationLimit) {
		t.Fatalf("ProcessTurn() error = %v, want iteration limit invocation failure", err)
	}
	if len(state.Log) != before || state.Turns != 0 {
		t.Errorf("input state modified after failure")
	}
	if inv.calls["converse"] != 3 {
		t.Errorf("converse calls = %d, want 3", inv.calls["converse"])
	}
}

func TestModelFailureCommitsNothing(t *testing.T) {
	inv := &scripted{converse: func(n int, _ []*schema.Message) (*schema.Message, error) {
		if n == 1 {
			return toolCall("c1", "divide", `{"a":1,"b":0}`), nil
		}
		return nil, errors.New("upstream 503")
	}}
	e := newEngine(t, inv)
	state := history(2)
	snapshot := state.Clone()

	got, err := e.ProcessTurn(context.Background(), state, baseRun(), model.NewUserMessage("1/0?"))
	if !errx.IsInvocation(err) {
		t.Fatalf("ProcessTurn() error = %v, want invocation failure", err)
	}
	if got != nil {
		t.Errorf("ProcessTurn() state = %v, want nil on failure", got)
	}
	if !reflect.DeepEqual(state, snapshot) {
		t.Errorf("input state modified after failure")
	}
}

func TestUnknownToolRecovers(t *testing.T) {
	var toolResult string
	inv := &scripted{converse: func(n int, msgs []*schema.Message) (*schema.Message, error) {
		if n == 1 {
			return toolCall("c1", "weather", `{"city":"Paris"}`), nil
		}
		toolResult = msgs[len(msgs)-1].Content
		return schema.AssistantMessage("I cannot check the weather.", nil), nil
	}}
	e := newEngine(t, inv)

	res, err := e.Run(context.Background(), model.NewConversationState("c"), baseRun(), model.NewUserMessage("weather in Paris?"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(toolResult, "not available") {
		t.Errorf("tool result = %q, want an unavailable notice", toolResult)
	}
	if res.Reply.Content != "I cannot check the weather." {
		t.Errorf("Reply = %q", res.Reply.Content)
	}
}

func TestProviderTimeoutIsAbsorbed(t *testing.T) {
	inv := &scripted{
		queries: `{"keyword_query":"Eiffel Tower","natural_query":"How tall is the Eiffel Tower?"}`,
		converse: func(int, []*schema.Message) (*schema.Message, error) {
			return schema.AssistantMessage("About 330 metres.", nil), nil
		},
	}
	e := newEngine(t, inv, blockingProvider{})
	rc := baseRun()
	rc.Providers = model.NameSet{"wikipedia"}

	state := model.NewConversationState("conv-d")
	state.SetContext("wikipedia", "stale")

	res, err := e.Run(context.Background(), state, rc, model.NewUserMessage("How tall is the Eiffel Tower?"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wantPath := []string{nodes.NodeSearchDecision, nodes.NodeRetrieve, nodes.NodeConverse}
	if !reflect.DeepEqual(res.Path, wantPath) {
		t.Errorf("Path = %v, want %v", res.Path, wantPath)
	}
	if _, ok := res.State.RetrievedContext["wikipedia"]; ok {
		t.Errorf("wikipedia entry present after timeout")
	}
	if state.RetrievedContext["wikipedia"] != "stale" {
		t.Errorf("input state modified")
	}
}

func TestConfigurationErrorsBeforeAnyCall(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.RunContext)
	}{
		{"unknown back-end", func(rc *model.RunContext) { rc.Model = "nope:model" }},
		{"unknown tool", func(rc *model.RunContext) { rc.Tools = model.NameSet{"teleport"} }},
		{"unknown provider", func(rc *model.RunContext) { rc.Providers = model.NameSet{"bing"} }},
		{"missing budget", func(rc *model.RunContext) { rc.Strategy, rc.Budget = model.StrategyTrimCount, 0 }},
		{"unknown strategy", func(rc *model.RunContext) { rc.Strategy = "forget-everything" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &scripted{converse: func(int, []*schema.Message) (*schema.Message, error) {
				return schema.AssistantMessage("unreachable", nil), nil
			}}
			e := newEngine(t, inv)
			rc := baseRun()
			tt.mutate(&rc)

			_, err := e.ProcessTurn(context.Background(), model.NewConversationState("c"), rc, model.NewUserMessage("hi"))
			if !errx.IsConfiguration(err) {
				t.Errorf("ProcessTurn() error = %v, want configuration error", err)
			}
			if n := inv.total(); n != 0 {
				t.Errorf("model calls = %d, want 0", n)
			}
		})
	}
}

func TestRejectsNonUserMessage(t *testing.T) {
	e := newEngine(t, &scripted{})
	_, err := e.ProcessTurn(context.Background(), model.NewConversationState("c"), baseRun(), model.NewAssistantMessage("hi", nil))
	if !errx.IsConfiguration(err) {
		t.Errorf("ProcessTurn() error = %v, want configuration error", err)
	}
}

func TestStrategyAliasCheckedBeforeAnyCall(t *testing.T) {
	inv := &scripted{converse: func(int, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("unreachable", nil), nil
	}}
	e := newEngine(t, inv, blockingProvider{})
	rc := baseRun()
	rc.Providers = model.NameSet{"wikipedia"}
	rc.Strategy, rc.Budget = "trim_count", 0

	_, err := e.ProcessTurn(context.Background(), history(1), rc, model.NewUserMessage("and now?"))
	if !errx.IsConfiguration(err) {
		t.Errorf("ProcessTurn() error = %v, want configuration error", err)
	}
	if n := inv.total(); n != 0 {
		t.Errorf("model calls = %d, want 0", n)
	}
}

func TestStrategyAliasRuns(t *testing.T) {
	inv := &scripted{converse: func(int, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("fine", nil), nil
	}}
	e := newEngine(t, inv)
	rc := baseRun()
	rc.Strategy, rc.Budget = "trim_count", 4

	res, err := e.Run(context.Background(), history(5), rc, model.NewUserMessage("and now?"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Reply.Content != "fine" {
		t.Errorf("reply = %q, want fine", res.Reply.Content)
	}
}
