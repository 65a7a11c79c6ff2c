package llm

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"

	"github.com/bdobrica/Kiki/common/trace"
)

// LogCallbackHandler reports langchaingo lifecycle events to slog. Prompt
// and completion text are never logged, only their sizes.
type LogCallbackHandler struct {
	callbacks.SimpleHandler
	logger *slog.Logger
}

func NewLogCallbackHandler(logger *slog.Logger) *LogCallbackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogCallbackHandler{logger: logger}
}

func (h *LogCallbackHandler) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
	trace.Logger(ctx, h.logger).Debug("llm: request", "messages", len(ms))
}

func (h *LogCallbackHandler) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	if res == nil {
		return
	}
	chars := 0
	for _, c := range res.Choices {
		chars += len(c.Content)
	}
	trace.Logger(ctx, h.logger).Debug("llm: response", "choices", len(res.Choices), "chars", chars)
}

func (h *LogCallbackHandler) HandleLLMError(ctx context.Context, err error) {
	trace.Logger(ctx, h.logger).Error("llm: backend error", "err", err)
}
