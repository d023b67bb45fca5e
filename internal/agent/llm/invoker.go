// Package llm is the model invocation capability consumed by the engine.
//
// The engine never talks to a vendor SDK directly. It resolves an Invoker for the
// run's model identifier through a Factory and calls it through Call. Call adds the
// per-call timeout and the typed invocation failure, and reports the call to eino
// chat model callbacks.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

// ErrEmptyReply is returned when a back-end answers with neither content nor tool calls.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Options are the per-call generation options.
type Options struct {
	// Model is the back-end specific model name, without the "<backend>:" prefix.
	Model       string
	Temperature float32
	MaxTokens   int
	// Tools are exposed to the model when non-empty; the reply may then carry tool calls.
	Tools []*schema.ToolInfo
}

// Invoker is a synchronous request/response model call.
type Invoker interface {
	Invoke(ctx context.Context, msgs []*schema.Message, opts Options) (*schema.Message, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, msgs []*schema.Message, opts Options) (*schema.Message, error)

func (f InvokerFunc) Invoke(ctx context.Context, msgs []*schema.Message, opts Options) (*schema.Message, error) {
	return f(ctx, msgs, opts)
}

// Call runs one model invocation with its own timeout. Any error, including a
// timeout or an empty reply, is returned as an invocation failure for stage.
func Call(ctx context.Context, inv Invoker, timeout time.Duration, stage string, msgs []*schema.Message, opts Options) (*schema.Message, error) {
	if inv == nil {
		return nil, errx.Invocation(stage, fmt.Errorf("no invoker configured"))
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := invokeWithCallbacks(callCtx, inv, msgs, opts)
	if err != nil {
		return nil, errx.Invocation(stage, err)
	}
	if out == nil || (strings.TrimSpace(out.Content) == "" && len(out.ToolCalls) == 0) {
		return nil, errx.Invocation(stage, ErrEmptyReply)
	}
	if out.Role == "" {
		out.Role = schema.Assistant
	}
	return out, nil
}

// invokeWithCallbacks runs inv as an eino chat model component so the handlers
// already in ctx see the call. Invokers that report IsCallbacksEnabled emit
// OnStart/OnEnd themselves and only get the run info.
func invokeWithCallbacks(ctx context.Context, inv Invoker, msgs []*schema.Message, opts Options) (*schema.Message, error) {
	typ, ok := components.GetType(inv)
	if !ok {
		typ = "Invoker"
	}
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      opts.Model,
		Type:      typ,
		Component: components.ComponentOfChatModel,
	})
	if components.IsCallbacksEnabled(inv) {
		return inv.Invoke(ctx, msgs, opts)
	}

	ctx = callbacks.OnStart(ctx, &model.CallbackInput{
		Messages: msgs,
		Tools:    opts.Tools,
		Config: &model.Config{
			Model:       opts.Model,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		},
	})
	out, err := inv.Invoke(ctx, msgs, opts)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}
	cbOut := &model.CallbackOutput{Message: out}
	if out != nil && out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		u := out.ResponseMeta.Usage
		cbOut.TokenUsage = &model.TokenUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	callbacks.OnEnd(ctx, cbOut)
	return out, nil
}
