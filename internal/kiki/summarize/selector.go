package summarize

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/bdobrica/Kiki/common/trace"
)

// Fallback reasons reported to the OnFallback hook.
const (
	ReasonDedicatedInit = "dedicated_init_failed"
	ReasonDedicatedCall = "dedicated_call_failed"
	ReasonGeneration    = "generation_failed"
)

// Initializer is a strategy that must be brought up before first use.
type Initializer interface {
	Summarizer
	Init(ctx context.Context) error
}

// Selector routes summarization to the configured strategy.
//
// The dedicated strategy is initialized on first use. If initialization
// fails the selector switches to the generation strategy for the rest of the
// process. A dedicated call that fails later only falls back for that call.
// Selector never returns an error from Summarize: every failure ends in "".
type Selector struct {
	dedicated  Initializer
	generation Summarizer
	logger     *slog.Logger
	onFallback func(reason string)

	mu          sync.Mutex
	current     Strategy
	initialized bool
}

// SelectorOption customizes a Selector.
type SelectorOption func(*Selector)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) SelectorOption {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFallbackHook registers fn to be called with a reason every time the
// selector degrades or falls back.
func WithFallbackHook(fn func(reason string)) SelectorOption {
	return func(s *Selector) { s.onFallback = fn }
}

// NewSelector returns a Selector preferring strategy. dedicated may be nil,
// in which case the selection is generation from the start.
func NewSelector(strategy Strategy, dedicated Initializer, generation Summarizer, opts ...SelectorOption) *Selector {
	s := &Selector{
		dedicated:  dedicated,
		generation: generation,
		logger:     slog.Default(),
		onFallback: func(string) {},
		current:    strategy,
	}
	for _, o := range opts {
		o(s)
	}
	if s.current == StrategyDedicated && dedicated == nil {
		s.current = StrategyGeneration
	}
	if s.current != StrategyDedicated {
		s.initialized = true
	}
	return s
}

// Current returns the strategy that will serve the next call.
func (s *Selector) Current() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Warm initializes the dedicated strategy eagerly, so that the first
// conversation to hit the compression threshold does not pay for it.
func (s *Selector) Warm(ctx context.Context) Strategy {
	return s.ensure(ctx)
}

func (s *Selector) ensure(ctx context.Context) Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return s.current
	}
	s.initialized = true
	if err := s.dedicated.Init(ctx); err != nil {
		s.logger.Warn("summarize: dedicated model unavailable, switching to generation model",
			"err", err)
		s.current = StrategyGeneration
		s.onFallback(ReasonDedicatedInit)
	} else {
		s.logger.Info("summarize: dedicated model ready")
	}
	return s.current
}

// Summarize implements Summarizer.
func (s *Selector) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	logger := trace.Logger(ctx, s.logger)

	if s.ensure(ctx) == StrategyDedicated {
		out, err := s.dedicated.Summarize(ctx, text)
		if err == nil {
			return out, nil
		}
		logger.Warn("summarize: dedicated call failed, using generation model for this call", "err", err)
		s.onFallback(ReasonDedicatedCall)
	}

	if s.generation == nil {
		return "", nil
	}
	out, err := s.generation.Summarize(ctx, text)
	if err != nil {
		logger.Warn("summarize: generation summary failed", "err", err)
		s.onFallback(ReasonGeneration)
		return "", nil
	}
	return out, nil
}

var _ Summarizer = (*Selector)(nil)
