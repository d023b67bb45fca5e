package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// newPromptHandler logs which variables a template received and the size of what it rendered.
func newPromptHandler() *callbackHelper.PromptCallbackHandler {
	return &callbackHelper.PromptCallbackHandler{
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			first := ""
			if len(output.Result) > 0 && output.Result[0] != nil {
				first = output.Result[0].Content
			}
			logx.Debug().
				Str("prompt", info.Name).
				Int("messages", len(output.Result)).
				Str("system", snippet(first, logSnippet)).
				Msg("prompt rendered")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("prompt", info.Name).Msg("prompt render failed")
			return ctx
		},
	}
}
