package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// timeoutTool bounds every run of the wrapped tool with its own deadline.
type timeoutTool struct {
	inner   tool.InvokableTool
	timeout time.Duration
}

// WithTimeout wraps t so each call fails once d has elapsed.
func WithTimeout(t tool.InvokableTool, d time.Duration) tool.InvokableTool {
	if d <= 0 {
		return t
	}
	return &timeoutTool{inner: t, timeout: d}
}

func (t *timeoutTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.inner.Info(ctx)
}

func (t *timeoutTool) InvokableRun(ctx context.Context, arguments string, opts ...tool.Option) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := t.inner.InvokableRun(ctx, arguments, opts...)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("tool timed out after %s: %w", t.timeout, ctx.Err())
	}
}
