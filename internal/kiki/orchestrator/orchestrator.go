// Package orchestrator answers one question end to end: it reads the mode's
// memory, retrieves and gates context for RAG questions, builds the prompt,
// calls the generator, attaches citations and schedules the memory write.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"

	"github.com/bdobrica/Kiki/common/trace"
	"github.com/bdobrica/Kiki/internal/kiki/llm"
	"github.com/bdobrica/Kiki/internal/kiki/memory"
	"github.com/bdobrica/Kiki/internal/kiki/observability"
	"github.com/bdobrica/Kiki/internal/kiki/relevance"
	"github.com/bdobrica/Kiki/internal/kiki/retrieval"
	"github.com/bdobrica/Kiki/internal/kiki/store"
)

var (
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("orchestrator: empty question")
	// ErrModelUnavailable is returned when no generation model is loaded.
	ErrModelUnavailable = errors.New("orchestrator: generation model not loaded")
	// ErrRetrievalUnavailable is returned for RAG questions when no index is
	// configured.
	ErrRetrievalUnavailable = errors.New("orchestrator: retrieval index not available")
	// ErrUnknownMode is memory.ErrUnknownMode, re-exported for callers that
	// only import this package.
	ErrUnknownMode = memory.ErrUnknownMode
)

// Outcome classifies a successful Ask.
type Outcome string

const (
	OutcomeAnswered       Outcome = "answered"
	OutcomeNoRelevantInfo Outcome = "no_relevant_info"

	// Reported to metrics and the interaction log only.
	outcomeUnavailable Outcome = "unavailable"
	outcomeError       Outcome = "error"
)

const (
	minAnswerChars = 20
	retryTemp      = 0.8
)

var stopSequences = []string{"User:", "Question:"}

// Config tunes prompt assembly and generation.
type Config struct {
	AssistantName   string
	Domain          string
	TopK            int
	Tiers           relevance.Tiers
	MaxContextChars int
	MaxPromptChars  int
	MaxTokens       int
	RAGTemperature  float64
	ChatTemperature float64
	MaxConcurrent   int64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AssistantName:   "Kiki",
		Domain:          "Ghana",
		TopK:            retrieval.DefaultTopK,
		Tiers:           relevance.DefaultTiers(),
		MaxContextChars: 2000,
		MaxPromptChars:  4000,
		MaxTokens:       1500,
		RAGTemperature:  0.7,
		ChatTemperature: 0.75,
		MaxConcurrent:   4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AssistantName == "" {
		c.AssistantName = d.AssistantName
	}
	if c.Domain == "" {
		c.Domain = d.Domain
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = d.MaxContextChars
	}
	if c.MaxPromptChars <= 0 {
		c.MaxPromptChars = d.MaxPromptChars
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	return c
}

// Recorder schedules memory writes. *memory.Recorder implements it.
type Recorder interface {
	Enqueue(ctx context.Context, mode memory.Mode, question, answer string) error
}

// InteractionLog persists one row per question. *store.Store implements it.
type InteractionLog interface {
	WriteInteraction(ctx context.Context, in store.Interaction) error
}

// Request is one question.
type Request struct {
	Question       string
	Mode           memory.Mode
	IncludeSources bool
	UseMemory      bool
}

// Answer is the result of a successful Ask.
type Answer struct {
	// Text is the generated answer, followed by the "Sources:" trailer when
	// sources were requested.
	Text      string
	Outcome   Outcome
	Mode      memory.Mode
	Tier      relevance.Tier
	Citations []Citation
	TraceID   string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithInteractionLog(l InteractionLog) Option {
	return func(o *Orchestrator) { o.interactions = l }
}

// Orchestrator runs the answer pipeline. It is safe for concurrent use.
type Orchestrator struct {
	cfg          Config
	gen          llm.Generator
	retriever    retrieval.Retriever
	modes        *memory.Modes
	recorder     Recorder
	sem          *semaphore.Weighted
	logger       *slog.Logger
	metrics      *observability.Metrics
	interactions InteractionLog
	now          func() time.Time
}

// New builds an Orchestrator. A nil retriever behaves as retrieval.Unavailable.
func New(cfg Config, gen llm.Generator, ret retrieval.Retriever, modes *memory.Modes, rec Recorder, opts ...Option) *Orchestrator {
	cfg = cfg.withDefaults()
	if gen == nil {
		gen = llm.Unavailable{}
	}
	if ret == nil {
		ret = retrieval.Unavailable{}
	}
	o := &Orchestrator{
		cfg:       cfg,
		gen:       gen,
		retriever: ret,
		modes:     modes,
		recorder:  rec,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ready reports whether questions can be answered at all.
func (o *Orchestrator) Ready() bool { return o.gen.Available() }

// Ask answers one question. Errors are typed for the unavailable and bad
// input cases; anything else is an internal fault wrapped with oops.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (ans *Answer, err error) {
	ctx, traceID := trace.Ensure(ctx)
	log := trace.Logger(ctx, o.logger).With("mode", string(req.Mode))
	start := o.now()
	defer func() {
		o.observe(ctx, req, ans, err, o.now().Sub(start))
	}()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	mem, err := o.modes.Get(req.Mode)
	if err != nil {
		return nil, err
	}
	if !o.gen.Available() {
		return nil, ErrModelUnavailable
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.sem.Release(1)
	if o.metrics != nil {
		o.metrics.InFlight.Inc()
		defer o.metrics.InFlight.Dec()
	}

	var history string
	if req.UseMemory {
		history = mem.RenderContext()
	}

	ans = &Answer{Mode: req.Mode, Tier: relevance.TierNone, TraceID: traceID}
	var prompt string
	var temperature float64
	var cited []retrieval.Source

	switch req.Mode {
	case memory.ModeRAG:
		decision, t, err := o.retrieve(ctx, question, traceID)
		if err != nil {
			return nil, err
		}
		ans.Tier = t
		if o.metrics != nil {
			o.metrics.RelevanceTiers.WithLabelValues(string(t)).Inc()
		}
		if !decision.Usable() {
			log.Info("orchestrator: no relevant context", "best_distance", firstDistance(decision))
			ans.Outcome = OutcomeNoRelevantInfo
			ans.Text = refusal(o.cfg.Domain)
			return ans, nil
		}
		block := truncateHead(buildContext(decision.Chunks, decision.Sources), o.cfg.MaxContextChars)
		prompt = ragPrompt(o.cfg.AssistantName, question, block, history)
		temperature = o.cfg.RAGTemperature
		cited = decision.Sources
	default:
		prompt = chatPrompt(o.cfg.AssistantName, question, history)
		temperature = o.cfg.ChatTemperature
	}

	text, err := o.generate(ctx, prompt, temperature)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			return nil, ErrModelUnavailable
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, oops.In("orchestrator").Trace(traceID).With("mode", string(req.Mode)).Wrapf(err, "generate answer")
	}

	if req.UseMemory && o.recorder != nil {
		if err := o.recorder.Enqueue(ctx, req.Mode, question, text); err != nil {
			log.Warn("orchestrator: memory write not scheduled", "err", err)
		}
	}

	ans.Outcome = OutcomeAnswered
	ans.Text = text
	if req.IncludeSources && len(cited) > 0 {
		ans.Citations = collectCitations(cited)
		ans.Text += formatCitations(ans.Citations)
	}
	return ans, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, question, traceID string) (relevance.Decision, relevance.Tier, error) {
	if !o.retriever.Available() {
		return relevance.Decision{}, relevance.TierNone, ErrRetrievalUnavailable
	}
	rs, err := o.retriever.Query(ctx, question, o.cfg.TopK)
	if err != nil {
		if errors.Is(err, retrieval.ErrUnavailable) {
			return relevance.Decision{}, relevance.TierNone, ErrRetrievalUnavailable
		}
		if ctx.Err() != nil {
			return relevance.Decision{}, relevance.TierNone, ctx.Err()
		}
		return relevance.Decision{}, relevance.TierNone, oops.In("orchestrator").Trace(traceID).Wrapf(err, "query index")
	}
	if err := rs.Validate(); err != nil {
		return relevance.Decision{}, relevance.TierNone, oops.In("orchestrator").Trace(traceID).Wrapf(err, "query index")
	}
	d, t := relevance.Escalate(rs, o.cfg.Tiers)
	return d, t, nil
}

// generate calls the model and, when the answer is shorter than
// minAnswerChars, retries once with a nudge at a higher temperature. A failed
// retry keeps the first answer if it had any text.
func (o *Orchestrator) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	prompt = truncateTail(prompt, o.cfg.MaxPromptChars)
	req := llm.Request{
		Prompt:      prompt,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: temperature,
		Stop:        stopSequences,
	}

	text, err := o.timedGenerate(ctx, req)
	if err != nil && !errors.Is(err, llm.ErrEmptyCompletion) {
		return "", err
	}
	if utf8.RuneCountInString(text) >= minAnswerChars {
		return text, nil
	}

	req.Prompt = prompt + shortAnswerNudge
	req.Temperature = retryTemp
	retried, rerr := o.timedGenerate(ctx, req)
	switch {
	case rerr == nil:
		return retried, nil
	case text != "":
		trace.Logger(ctx, o.logger).Warn("orchestrator: short answer retry failed, keeping first answer", "err", rerr)
		return text, nil
	default:
		return "", rerr
	}
}

func (o *Orchestrator) timedGenerate(ctx context.Context, req llm.Request) (string, error) {
	start := o.now()
	text, err := o.gen.Generate(ctx, req)
	if o.metrics != nil {
		o.metrics.ObserveGeneration(o.now().Sub(start))
	}
	return strings.TrimSpace(text), err
}

func classify(ans *Answer, err error) Outcome {
	switch {
	case err == nil && ans != nil:
		return ans.Outcome
	case errors.Is(err, ErrModelUnavailable), errors.Is(err, ErrRetrievalUnavailable):
		return outcomeUnavailable
	default:
		return outcomeError
	}
}

func (o *Orchestrator) observe(ctx context.Context, req Request, ans *Answer, err error, latency time.Duration) {
	// Bad input never reaches the pipeline and is not worth a log row.
	if errors.Is(err, ErrEmptyQuestion) || errors.Is(err, ErrUnknownMode) {
		return
	}
	outcome := classify(ans, err)
	if o.metrics != nil {
		o.metrics.Requests.WithLabelValues(string(req.Mode), string(outcome)).Inc()
	}
	if o.interactions == nil {
		return
	}
	in := store.Interaction{
		TraceID:       trace.FromContext(ctx),
		Mode:          string(req.Mode),
		Outcome:       string(outcome),
		RelevanceTier: string(relevance.TierNone),
		QuestionChars: utf8.RuneCountInString(req.Question),
		Latency:       latency,
	}
	if ans != nil {
		in.RelevanceTier = string(ans.Tier)
		in.AnswerChars = utf8.RuneCountInString(ans.Text)
		in.Sources = len(ans.Citations)
	}
	if err != nil {
		in.Error = err.Error()
	}
	if werr := o.interactions.WriteInteraction(context.WithoutCancel(ctx), in); werr != nil {
		trace.Logger(ctx, o.logger).Warn("orchestrator: interaction log write failed", "err", werr)
	}
}

func firstDistance(d relevance.Decision) float64 {
	if len(d.Distances) == 0 {
		return -1
	}
	return d.Distances[0]
}
