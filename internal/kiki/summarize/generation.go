package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/Kiki/internal/kiki/llm"
)

// GenerationChunkChars is the per-chunk character budget when summarizing
// with the generation model. Smaller than the dedicated budget so that the
// prompt wrapper and the output both fit the model's window.
const GenerationChunkChars = 3000

const generationPrompt = "Summarize this conversation concisely in 2-3 sentences, capturing the key points:\n\n%s\n\nSummary:"

var generationStop = []string{"\n\n", "User:", "Question:"}

// Generation summarizes by prompting the general generation model.
type Generation struct {
	gen        llm.Generator
	chunkChars int
	logger     *slog.Logger
}

func NewGeneration(gen llm.Generator, logger *slog.Logger) *Generation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generation{gen: gen, chunkChars: GenerationChunkChars, logger: logger}
}

// Summarize implements Summarizer. It returns llm.ErrUnavailable when no
// generation model is loaded.
func (g *Generation) Summarize(ctx context.Context, text string) (string, error) {
	if g.gen == nil || !g.gen.Available() {
		return "", llm.ErrUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return chunked(ctx, text, g.chunkChars, g.pass, g.logger)
}

func (g *Generation) pass(ctx context.Context, text string, chunk bool) (string, error) {
	maxTokens := 150
	if chunk {
		maxTokens = 100
	}
	return g.gen.Generate(ctx, llm.Request{
		Prompt:      fmt.Sprintf(generationPrompt, text),
		MaxTokens:   maxTokens,
		Temperature: 0.3,
		Stop:        generationStop,
	})
}

var _ Summarizer = (*Generation)(nil)
