// Package llm is Kiki's text generation backend.
//
// The orchestrator and the generation-backed summarizer only see the
// Generator interface. The production implementation talks to any
// OpenAI-compatible completion endpoint through langchaingo.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no generation model is loaded. Callers
// report it to the user as "model not loaded" rather than as an internal
// fault.
var ErrUnavailable = errors.New("llm: generation model not loaded")

// ErrEmptyCompletion is returned when the backend answered with no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Request is a single completion call.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Available reports whether a model is loaded. Generate on an
	// unavailable generator returns ErrUnavailable.
	Available() bool
}

// Unavailable is the Generator used when no backend is configured.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, Request) (string, error) { return "", ErrUnavailable }
func (Unavailable) Available() bool                                   { return false }

var _ Generator = Unavailable{}
