package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/bdobrica/Kiki/common/retry"
)

const (
	// DefaultModel is the completion model requested when none is configured.
	DefaultModel = "gemma2-2b"
	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 120 * time.Second
)

// Config configures LangChain.
type Config struct {
	// BaseURL of the OpenAI-compatible API, e.g. a local llama.cpp or vLLM
	// server. Empty uses api.openai.com.
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Retry governs transient failures (429, 5xx). Zero value uses
	// retry.DefaultConfig.
	Retry retry.Config
}

// LangChain is a Generator backed by a langchaingo model.
type LangChain struct {
	model   llms.Model
	timeout time.Duration
	retry   retry.Config
	logger  *slog.Logger
}

// NewLangChain builds an OpenAI-compatible client. The client is created
// lazily by langchaingo, so no network call is made here.
func NewLangChain(cfg Config, logger *slog.Logger) (*LangChain, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithCallback(NewLogCallbackHandler(logger)),
	}
	// langchaingo refuses an empty token even for servers that ignore it.
	token := cfg.APIKey
	if token == "" {
		token = "unused"
	}
	opts = append(opts, openai.WithToken(token))
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: create openai client: %w", err)
	}
	return NewFromModel(model, cfg, logger), nil
}

// NewFromModel wraps an existing langchaingo model.
func NewFromModel(model llms.Model, cfg Config, logger *slog.Logger) *LangChain {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	rc := cfg.Retry
	if rc.MaxAttempts == 0 {
		rc = retry.DefaultConfig
	}
	rc.Name = "llm.generate"
	rc.ShouldRetry = isTransient
	return &LangChain{model: model, timeout: cfg.Timeout, retry: rc, logger: logger}
}

// Available implements Generator.
func (g *LangChain) Available() bool { return g != nil && g.model != nil }

// Generate implements Generator.
func (g *LangChain) Generate(ctx context.Context, req Request) (string, error) {
	if !g.Available() {
		return "", ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	opts = append(opts, llms.WithTemperature(req.Temperature))
	if len(req.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(req.Stop))
	}

	start := time.Now()
	text, err := retry.Value(ctx, g.retry, func() (string, error) {
		return llms.GenerateFromSinglePrompt(ctx, g.model, req.Prompt, opts...)
	})
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	text = strings.TrimSpace(text)
	g.logger.Debug("llm: completion finished",
		"prompt_chars", len(req.Prompt), "answer_chars", len(text),
		"duration", time.Since(start))
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// isTransient reports whether a backend error is worth another attempt.
// langchaingo surfaces HTTP failures as formatted strings, so the status
// code is matched textually.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "500", "502", "503", "504", "connection reset", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var (
	_ Generator         = (*LangChain)(nil)
	_ callbacks.Handler = (*LogCallbackHandler)(nil)
)
