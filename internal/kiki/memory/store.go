// Package memory holds Kiki's conversational memory: a rolling summary of
// older exchanges plus the most recent turns verbatim, kept separately for
// the plain chat mode and the retrieval-augmented mode.
//
// A Store grows by one Turn per answered question. When its estimated token
// cost exceeds the configured threshold it compresses itself: everything but
// the newest K turns is summarized and folded into the running summary.
package memory

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Kiki/common/trace"
)

// Config controls when and how a Store compresses.
type Config struct {
	// TokenThreshold is the total estimated cost above which a Record call
	// triggers compression. Default: 2000.
	TokenThreshold int

	// RecentTurnsKeep is how many of the newest turns survive a compression
	// verbatim. Default: 3.
	RecentTurnsKeep int

	// SummaryCapTokens bounds the merged summary; a merge that exceeds it is
	// summarized again. Default: 300.
	SummaryCapTokens int

	// EnableSummarization turns compression into summarization. When false,
	// compression just drops everything but the newest turns.
	EnableSummarization bool

	// AssistantName labels the assistant side of rendered turns.
	// Default: "Kiki".
	AssistantName string
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		TokenThreshold:      2000,
		RecentTurnsKeep:     3,
		SummaryCapTokens:    300,
		EnableSummarization: true,
		AssistantName:       "Kiki",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TokenThreshold <= 0 {
		c.TokenThreshold = d.TokenThreshold
	}
	if c.RecentTurnsKeep <= 0 {
		c.RecentTurnsKeep = d.RecentTurnsKeep
	}
	if c.SummaryCapTokens <= 0 {
		c.SummaryCapTokens = d.SummaryCapTokens
	}
	if c.AssistantName == "" {
		c.AssistantName = d.AssistantName
	}
	return c
}

// Estimator prices text in tokens.
type Estimator interface {
	Estimate(text string) int
}

// Summarizer condenses a transcript. An empty result means there was
// nothing worth keeping and is not an error.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Turn is one answered question.
type Turn struct {
	ID         string
	Question   string
	Answer     string
	RecordedAt time.Time
}

// State is a point-in-time copy of a Store.
type State struct {
	Summary     string
	Turns       []Turn
	TotalTokens int
}

// Stats summarizes a Store for operators.
type Stats struct {
	Mode         Mode      `json:"mode"`
	TotalTokens  int       `json:"total_tokens"`
	Turns        int       `json:"turns"`
	HasSummary   bool      `json:"has_summary"`
	Compressions int       `json:"compressions"`
	LastUpdated  time.Time `json:"last_updated,omitzero"`
}

// CompressionKind says what a compression pass did.
type CompressionKind string

const (
	CompressionSummarized CompressionKind = "summarized"
	CompressionTruncated  CompressionKind = "truncated"
	CompressionDiscarded  CompressionKind = "discarded"
)

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCompressionHook registers fn to observe every compression pass that
// changed (or tried to change) the store.
func WithCompressionHook(fn func(Mode, CompressionKind)) Option {
	return func(s *Store) { s.onCompress = fn }
}

// withClock is used by tests.
func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the memory of one conversation mode. It is safe for concurrent
// use.
//
// Writers (Record, Compress) are serialized by writeMu and hold it across
// summarization. The state itself is guarded by mu, which is never held
// while the summarizer runs, so RenderContext stays fast during a long
// compression. Reset only takes mu; a compression that started before a
// Reset notices the epoch change and drops its result.
type Store struct {
	mode       Mode
	cfg        Config
	est        Estimator
	sum        Summarizer
	logger     *slog.Logger
	onCompress func(Mode, CompressionKind)
	now        func() time.Time

	writeMu sync.Mutex

	mu           sync.RWMutex
	summary      string
	turns        []Turn
	total        int
	epoch        uint64
	compressions int
	updated      time.Time
}

// NewStore returns an empty Store for mode.
func NewStore(mode Mode, cfg Config, est Estimator, sum Summarizer, opts ...Option) *Store {
	s := &Store{
		mode:       mode,
		cfg:        cfg.withDefaults(),
		est:        est,
		sum:        sum,
		logger:     slog.Default(),
		onCompress: func(Mode, CompressionKind) {},
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("mode", string(mode))
	return s
}

// Mode returns the conversation mode this store belongs to.
func (s *Store) Mode() Mode { return s.mode }

// Record appends a completed exchange and compresses synchronously when the
// store has grown past the token threshold.
func (s *Store) Record(ctx context.Context, question, answer string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.turns = append(s.turns, Turn{
		ID:         uuid.NewString(),
		Question:   question,
		Answer:     answer,
		RecordedAt: s.now(),
	})
	s.total += s.est.Estimate(question) + s.est.Estimate(answer)
	s.updated = s.now()
	over := s.total > s.cfg.TokenThreshold
	total := s.total
	s.mu.Unlock()

	if over {
		trace.Logger(ctx, s.logger).Debug("memory: threshold exceeded, compressing",
			"total_tokens", total, "threshold", s.cfg.TokenThreshold)
		s.compress(ctx)
	}
}

// Compress folds all but the newest RecentTurnsKeep turns into the summary.
// It is a no-op when there is nothing older than the kept window.
func (s *Store) Compress(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.compress(ctx)
}

// compress must be called with writeMu held.
func (s *Store) compress(ctx context.Context) {
	logger := trace.Logger(ctx, s.logger)
	keep := s.cfg.RecentTurnsKeep

	s.mu.Lock()
	if !s.cfg.EnableSummarization {
		dropped := max(len(s.turns)-keep, 0)
		if dropped > 0 {
			s.turns = slices.Clone(s.turns[dropped:])
		}
		s.total = s.recount()
		s.compressions++
		s.mu.Unlock()
		logger.Info("memory: summarization disabled, dropped old turns", "dropped", dropped)
		s.onCompress(s.mode, CompressionTruncated)
		return
	}
	if len(s.turns) <= keep {
		s.mu.Unlock()
		return
	}
	cut := len(s.turns) - keep
	old := slices.Clone(s.turns[:cut])
	prior := s.summary
	epoch := s.epoch
	s.mu.Unlock()

	fresh, err := s.sum.Summarize(ctx, s.transcript(old))
	if err != nil {
		logger.Warn("memory: summarization failed, dropping old turns without summary", "err", err)
		fresh = ""
	}
	merged := s.merge(ctx, prior, strings.TrimSpace(fresh))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		logger.Debug("memory: store was reset during compression, discarding result")
		s.onCompress(s.mode, CompressionDiscarded)
		return
	}
	s.summary = merged
	s.turns = slices.Clone(s.turns[cut:])
	s.total = s.recount()
	s.compressions++
	s.updated = s.now()
	logger.Info("memory: compressed",
		"summarized_turns", cut, "kept_turns", len(s.turns),
		"summary_tokens", s.est.Estimate(s.summary), "total_tokens", s.total)
	s.onCompress(s.mode, CompressionSummarized)
}

// merge appends fresh to prior, re-summarizing when the result is over the
// summary cap. If that re-summary fails, only fresh is kept: the summary must
// stay within the cap plus one summarizer output.
func (s *Store) merge(ctx context.Context, prior, fresh string) string {
	switch {
	case fresh == "":
		return prior
	case prior == "":
		return fresh
	}
	combined := prior + " " + fresh
	if s.est.Estimate(combined) <= s.cfg.SummaryCapTokens {
		return combined
	}
	squeezed, err := s.sum.Summarize(ctx, combined)
	if squeezed = strings.TrimSpace(squeezed); err != nil || squeezed == "" {
		trace.Logger(ctx, s.logger).Warn("memory: summary re-compression failed, keeping newest summary only",
			"err", err, "dropped_tokens", s.est.Estimate(prior))
		return fresh
	}
	return squeezed
}

// recount must be called with mu held.
func (s *Store) recount() int {
	n := s.est.Estimate(s.summary)
	for _, t := range s.turns {
		n += s.est.Estimate(t.Question) + s.est.Estimate(t.Answer)
	}
	return n
}

func (s *Store) transcript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		s.writeTurn(&b, t)
	}
	return strings.TrimSpace(b.String())
}

func (s *Store) writeTurn(b *strings.Builder, t Turn) {
	b.WriteString("User: ")
	b.WriteString(t.Question)
	b.WriteString("\n")
	b.WriteString(s.cfg.AssistantName)
	b.WriteString(": ")
	b.WriteString(t.Answer)
	b.WriteString("\n\n")
}

// RenderContext formats the store for inclusion in a prompt. It returns ""
// when the store holds nothing.
func (s *Store) RenderContext() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.summary == "" && len(s.turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n\n")
	if s.summary != "" {
		b.WriteString("Earlier context: ")
		b.WriteString(s.summary)
		b.WriteString("\n\n")
	}
	if len(s.turns) > 0 {
		b.WriteString("Recent messages:\n")
		for _, t := range s.turns {
			s.writeTurn(&b, t)
		}
	}
	return b.String()
}

// Reset empties the store. Calling it on an empty store is a no-op.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = ""
	s.turns = nil
	s.total = 0
	s.epoch++
	s.updated = s.now()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Summary:     s.summary,
		Turns:       slices.Clone(s.turns),
		TotalTokens: s.total,
	}
}

// Stats returns operator-facing counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Mode:         s.mode,
		TotalTokens:  s.total,
		Turns:        len(s.turns),
		HasSummary:   s.summary != "",
		Compressions: s.compressions,
		LastUpdated:  s.updated,
	}
}
