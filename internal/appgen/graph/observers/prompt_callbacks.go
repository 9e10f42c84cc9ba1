package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/genapp-poc-v1/server/pkg/logger"
)

// newPromptHandler logs how many messages each prompt node produced; the
// content itself is logged once by the model handler.
func newPromptHandler() *callbackHelper.PromptCallbackHandler {
	return &callbackHelper.PromptCallbackHandler{
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			n := 0
			if output != nil {
				n = len(output.Result)
			}
			logx.Debug().Str("type", info.Type).Str("node", info.Name).Int("messages", n).Msg("prompt rendered")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("type", info.Type).Str("node", info.Name).Msg("prompt error")
			return ctx
		},
	}
}
