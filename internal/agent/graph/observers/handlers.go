// Package observers logs eino component and node lifecycle events through logx.
package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// NewAllCallbacks aggregates the node, prompt, model and tool handlers into one callbacks.Handler.
func NewAllCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler()).
		ChatModel(newModelHandler()).
		Prompt(newPromptHandler()).
		Lambda(newNodeHandler()).
		Handler()
}

// newNodeHandler logs router state entry and failure for lambda nodes.
func newNodeHandler() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			if info == nil || info.Component != compose.ComponentOfLambda {
				return ctx
			}
			logx.Debug().Str("node", info.Name).Msg("enter")
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			if info == nil {
				return ctx
			}
			logx.Debug().Err(err).Str("node", info.Name).Msg("node failed")
			return ctx
		}).
		Build()
}

// snippet shortens s for log lines.
func snippet(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
