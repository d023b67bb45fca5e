package conversations

import (
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

// buildLog creates a log from a role pattern: u=user, a=assistant, c=assistant
// with a tool call, t=tool result answering the preceding call, s=system.
func buildLog(pattern string) []*model.Message {
	var out []*model.Message
	call := 0
	for i, r := range pattern {
		switch r {
		case 'u':
			out = append(out, model.NewUserMessage(fmt.Sprintf("user %d", i)))
		case 'a':
			out = append(out, model.NewAssistantMessage(fmt.Sprintf("assistant %d", i), nil))
		case 'c':
			call++
			out = append(out, model.NewAssistantMessage("", []schema.ToolCall{{
				ID:       fmt.Sprintf("call_%d", call),
				Function: schema.FunctionCall{Name: "add", Arguments: `{"a":1,"b":2}`},
			}}))
		case 't':
			out = append(out, model.NewToolMessage("3", fmt.Sprintf("call_%d", call), "add"))
		case 's':
			out = append(out, model.NewMessage(schema.SystemMessage(fmt.Sprintf("system %d", i))))
		}
	}
	return out
}

func isSuffix(kept, all []*model.Message) bool {
	if len(kept) > len(all) {
		return false
	}
	off := len(all) - len(kept)
	for i := range kept {
		if kept[i] != all[off+i] {
			return false
		}
	}
	return true
}

// orphanFree reports whether every tool result in w has its request inside w.
func orphanFree(w []*model.Message) bool {
	open := map[string]bool{}
	for _, m := range w {
		if m.IsToolRequest() {
			for _, tc := range m.ToolCalls {
				open[tc.ID] = true
			}
		}
		if m.IsTool() && !open[m.ToolCallID] {
			return false
		}
	}
	return true
}

func TestReduceTrimByCountProperty(t *testing.T) {
	patterns := []string{
		"u",
		"ua",
		"uauauauaua",
		"ucta",
		"ucttaucta",
		"uctctctcta",
		"suauaua",
		"ctctcta",
		"aaaa",
		"uctttttt",
	}
	for _, p := range patterns {
		log := buildLog(p)
		for b := 1; b <= len(log)+1; b++ {
			red, err := Reduce(log, model.StrategyTrimCount, b)
			if err != nil {
				t.Fatalf("Reduce(%q, %d) error = %v", p, b, err)
			}
			if !isSuffix(red.Kept, log) {
				t.Errorf("Reduce(%q, %d) kept is not a suffix", p, b)
			}
			if len(red.Kept) == 0 {
				t.Errorf("Reduce(%q, %d) kept nothing", p, b)
			}
			if len(red.Kept)+len(red.Removed) != len(log) {
				t.Errorf("Reduce(%q, %d) kept+removed = %d, want %d", p, b, len(red.Kept)+len(red.Removed), len(log))
			}
			if !orphanFree(red.Kept) {
				t.Errorf("Reduce(%q, %d) kept window starts with an orphaned tool result", p, b)
			}
			if red.Kept[len(red.Kept)-1] != log[len(log)-1] {
				t.Errorf("Reduce(%q, %d) window does not end on the latest message", p, b)
			}
			if len(red.Kept) > b && !coherentOnly(red.Kept) {
				t.Errorf("Reduce(%q, %d) kept %d messages over budget", p, b, len(red.Kept))
			}
		}
	}
}

// coherentOnly reports whether w is exactly a request followed by its tool
// results, the only window allowed to exceed a count budget.
func coherentOnly(w []*model.Message) bool {
	if len(w) == 0 || !w[0].IsToolRequest() && len(w) > 1 {
		return len(w) <= 1
	}
	for _, m := range w[1:] {
		if !m.IsTool() {
			return false
		}
	}
	return true
}

func TestReduceIdempotent(t *testing.T) {
	strategies := []model.Strategy{
		model.StrategyKeepAll,
		model.StrategyTrimCount,
		model.StrategyTrimTokens,
		model.StrategyDeleteOldest,
	}
	log := buildLog("uauctauctttauaua")
	for _, s := range strategies {
		for _, b := range []int{1, 3, 5, 10, 40} {
			first, err := Reduce(log, s, b)
			if err != nil {
				t.Fatalf("Reduce(%s, %d) error = %v", s, b, err)
			}
			second, err := Reduce(first.Kept, s, b)
			if err != nil {
				t.Fatalf("second Reduce(%s, %d) error = %v", s, b, err)
			}
			if len(second.Kept) != len(first.Kept) || len(second.Removed) != 0 {
				t.Errorf("Reduce(%s, %d) not idempotent: %d then %d", s, b, len(first.Kept), len(second.Kept))
			}
		}
	}
}

func TestReduceFiftyMessagesBudgetTen(t *testing.T) {
	var pattern string
	for len(pattern) < 50 {
		pattern += "uctta"
	}
	log := buildLog(pattern[:50])

	red, err := Reduce(log, model.StrategyTrimCount, 10)
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if len(red.Kept) > 10 {
		t.Errorf("len(kept) = %d, want <= 10", len(red.Kept))
	}
	if red.Kept[len(red.Kept)-1] != log[49] {
		t.Errorf("window does not end on the latest message")
	}
	if !red.Kept[0].IsUser() {
		t.Errorf("window starts on %s, want user", red.Kept[0].Role())
	}
}

func TestReduceKeepAll(t *testing.T) {
	log := buildLog("ctuaua")
	red, err := Reduce(log, model.StrategyKeepAll, 1)
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if len(red.Kept) != len(log) || len(red.Removed) != 0 {
		t.Errorf("keep-all kept %d removed %d, want %d and 0", len(red.Kept), len(red.Removed), len(log))
	}
}

func TestReduceDeleteOldest(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		n       int
		want    int
	}{
		{"exact", "uauaua", 4, 4},
		{"shorter than budget", "ua", 5, 2},
		{"extends over tool pair", "uauctta", 2, 4},
		{"single", "uauaua", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := buildLog(tt.pattern)
			red, err := Reduce(log, model.StrategyDeleteOldest, tt.n)
			if err != nil {
				t.Fatalf("Reduce() error = %v", err)
			}
			if len(red.Kept) != tt.want {
				t.Errorf("len(kept) = %d, want %d", len(red.Kept), tt.want)
			}
			if !orphanFree(red.Kept) {
				t.Errorf("kept window has an orphaned tool result")
			}
		})
	}
}

func TestReduceTrimByTokens(t *testing.T) {
	log := buildLog("uauaua")
	budget := ApproxTokens(log[4:])

	red, err := Reduce(log, model.StrategyTrimTokens, budget)
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if len(red.Kept) != 2 {
		t.Errorf("len(kept) = %d, want 2", len(red.Kept))
	}
	if got := ApproxTokens(red.Kept); got > budget {
		t.Errorf("ApproxTokens(kept) = %d, want <= %d", got, budget)
	}
	if !red.Kept[0].IsUser() {
		t.Errorf("window starts on %s, want user", red.Kept[0].Role())
	}
}

func TestReduceEdgeCases(t *testing.T) {
	t.Run("budget smaller than latest message keeps it", func(t *testing.T) {
		log := buildLog("uaua")
		red, err := Reduce(log, model.StrategyTrimTokens, 1)
		if err != nil {
			t.Fatalf("Reduce() error = %v", err)
		}
		if len(red.Kept) != 1 || red.Kept[0] != log[3] {
			t.Errorf("kept = %d messages, want only the latest", len(red.Kept))
		}
	})

	t.Run("no user message keeps from first non tool", func(t *testing.T) {
		log := buildLog("saaa")
		red, err := Reduce(log, model.StrategyTrimCount, 10)
		if err != nil {
			t.Fatalf("Reduce() error = %v", err)
		}
		if len(red.Kept) != 4 {
			t.Errorf("len(kept) = %d, want 4", len(red.Kept))
		}
	})

	t.Run("latest is tool result keeps its request", func(t *testing.T) {
		log := buildLog("uauct")
		red, err := Reduce(log, model.StrategyTrimCount, 1)
		if err != nil {
			t.Fatalf("Reduce() error = %v", err)
		}
		if len(red.Kept) != 2 || !red.Kept[0].IsToolRequest() {
			t.Errorf("kept = %d messages starting with %s, want the call and its result", len(red.Kept), red.Kept[0].Role())
		}
	})

	t.Run("empty log", func(t *testing.T) {
		red, err := Reduce(nil, model.StrategyTrimCount, 3)
		if err != nil {
			t.Fatalf("Reduce() error = %v", err)
		}
		if len(red.Kept) != 0 {
			t.Errorf("len(kept) = %d, want 0", len(red.Kept))
		}
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := Reduce(buildLog("u"), model.Strategy("forget-everything"), 3)
		if !errx.IsConfiguration(err) {
			t.Errorf("Reduce() error = %v, want configuration error", err)
		}
	})
}

func TestSplitForSummary(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		tail      int
		wantOlder int
	}{
		{"nothing to summarize", "ua", 2, 0},
		{"tail starts on user", "uauaua", 2, 4},
		{"tail moves forward to user", "uauaua", 3, 4},
		{"tail starts on tool request", "uauctta", 4, 3},
		{"tail without user starts on non tool", "uaaaaa", 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := buildLog(tt.pattern)
			older, kept := SplitForSummary(log, tt.tail)
			if len(older) != tt.wantOlder {
				t.Errorf("len(older) = %d, want %d", len(older), tt.wantOlder)
			}
			if len(older)+len(kept) != len(log) {
				t.Errorf("split lost messages: %d + %d != %d", len(older), len(kept), len(log))
			}
			if len(kept) > tt.tail {
				t.Errorf("len(kept) = %d, want <= %d", len(kept), tt.tail)
			}
			if !orphanFree(kept) {
				t.Errorf("kept tail has an orphaned tool result")
			}
		})
	}
}
