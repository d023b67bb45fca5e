package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

// Registry maps tool names to invokable tools.
type Registry map[string]tool.InvokableTool

// NewRegistry indexes ts by their declared names, wrapping each with timeout.
func NewRegistry(ctx context.Context, timeout time.Duration, ts ...tool.InvokableTool) (Registry, error) {
	r := Registry{}
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get tool info: %w", err)
		}
		r[info.Name] = WithTimeout(t, timeout)
	}
	return r, nil
}

// Arithmetic returns the add, multiply and divide tools.
func Arithmetic() []tool.InvokableTool {
	return []tool.InvokableTool{NewAddTool(), NewMultiplyTool(), NewDivideTool()}
}

// Select returns the enabled tools and their signatures, in the order of names.
// An unknown name is a configuration error.
func (r Registry) Select(ctx context.Context, names model.NameSet) ([]tool.BaseTool, []*schema.ToolInfo, error) {
	ts := make([]tool.BaseTool, 0, len(names))
	infos := make([]*schema.ToolInfo, 0, len(names))
	for _, n := range names {
		t, ok := r[n]
		if !ok {
			return nil, nil, errx.Configuration("unknown tool %q", n)
		}
		info, err := t.Info(ctx)
		if err != nil {
			return nil, nil, errx.Configuration("tool %s info: %v", n, err)
		}
		ts = append(ts, t)
		infos = append(infos, info)
	}
	return ts, infos, nil
}

// Names lists the registered tools.
func (r Registry) Names() model.NameSet {
	out := make(model.NameSet, 0, len(r))
	for n := range r {
		out = append(out, n)
	}
	return model.NameSet(out.Sorted())
}
