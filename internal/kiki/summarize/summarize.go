// Package summarize compresses conversation transcripts into short prose.
//
// Two strategies exist: a dedicated summarization model reached over an
// inference API, and a fallback that prompts the general generation model.
// Both split long input the same way: fixed-size character chunks cut from
// the end of the text backward, each summarized on its own, with the joined
// chunk summaries summarized again until one piece remains.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Strategy names a summarization backend.
type Strategy string

const (
	StrategyDedicated  Strategy = "dedicated"
	StrategyGeneration Strategy = "generation"
)

// ParseStrategy accepts the config spellings, including the historical
// model-family names "bart" and "gemma".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dedicated", "bart":
		return StrategyDedicated, nil
	case "generation", "gemma":
		return StrategyGeneration, nil
	}
	return "", fmt.Errorf("summarize: unknown strategy %q", s)
}

// Summarizer turns text into a shorter summary. An empty result with a nil
// error means "nothing useful to add".
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// pass summarizes one piece of text. chunk is true when the text is one
// chunk of a longer input, letting strategies use smaller output limits.
type pass func(ctx context.Context, text string, chunk bool) (string, error)

// chunked runs the chunking algorithm over text with a per-chunk budget in
// characters. An error from a direct (unchunked) pass is returned so the
// caller can fall back; errors from individual chunks only skip that chunk.
func chunked(ctx context.Context, text string, budget int, one pass, logger *slog.Logger) (string, error) {
	runes := []rune(text)
	if len(runes) <= budget {
		return one(ctx, text, false)
	}

	pieces := splitFromEnd(runes, budget)

	// pieces[0] is the newest text; summaries are kept in chronological order.
	summaries := make([]string, len(pieces))
	kept := 0
	for i, piece := range pieces {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s, err := one(ctx, piece, true)
		if err != nil {
			logger.Warn("summarize: chunk failed, skipping",
				"chunk", i, "chunks", len(pieces), "err", err)
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			summaries[len(pieces)-1-i] = s
			kept++
		}
	}

	var parts []string
	for _, s := range summaries {
		if s != "" {
			parts = append(parts, s)
		}
	}
	switch kept {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	}

	combined := strings.Join(parts, " ")
	if len([]rune(combined)) >= len(runes) {
		logger.Warn("summarize: chunk summaries did not shrink the text, keeping newest",
			"input_chars", len(runes), "combined_chars", len([]rune(combined)))
		return parts[len(parts)-1], nil
	}
	return chunked(ctx, combined, budget, one, logger)
}

// splitFromEnd cuts budget-sized pieces off the end of runes until the rest
// fits in one piece. The first returned piece is the suffix of the input and
// the last one is the (possibly shorter) head.
func splitFromEnd(runes []rune, budget int) []string {
	var pieces []string
	rest := runes
	for len(rest) > budget {
		pieces = append(pieces, string(rest[len(rest)-budget:]))
		rest = rest[:len(rest)-budget]
	}
	if len(rest) > 0 {
		pieces = append(pieces, string(rest))
	}
	return pieces
}
