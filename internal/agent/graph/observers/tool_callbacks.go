package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// newToolHandler logs tool arguments and results.
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			if input == nil {
				return ctx
			}
			logx.Debug().
				Str("tool_name", info.Name).
				Str("arguments", snippet(input.ArgumentsInJSON, logSnippet)).
				Msg("tool start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			logx.Debug().
				Str("tool_name", info.Name).
				Str("result", snippet(output.Response, logSnippet)).
				Msg("tool end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("tool_name", info.Name).Msg("tool failed")
			return ctx
		},
	}
}
