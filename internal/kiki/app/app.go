// Package app wires Kiki's services together and runs the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/samber/do"
	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/Kiki/common/version"
	"github.com/bdobrica/Kiki/internal/kiki/config"
	"github.com/bdobrica/Kiki/internal/kiki/httpapi"
	"github.com/bdobrica/Kiki/internal/kiki/llm"
	"github.com/bdobrica/Kiki/internal/kiki/memory"
	"github.com/bdobrica/Kiki/internal/kiki/observability"
	"github.com/bdobrica/Kiki/internal/kiki/orchestrator"
	"github.com/bdobrica/Kiki/internal/kiki/relevance"
	"github.com/bdobrica/Kiki/internal/kiki/retrieval"
	"github.com/bdobrica/Kiki/internal/kiki/store"
	"github.com/bdobrica/Kiki/internal/kiki/summarize"
	"github.com/bdobrica/Kiki/internal/kiki/tokens"
)

const (
	metricsNamespace = "kiki"
	shutdownTimeout  = 10 * time.Second
)

// App owns the dependency graph. Services are built on first use, so a
// one-shot CLI command only pays for what it touches.
type App struct {
	di     *do.Injector
	cfg    *config.Config
	logger *slog.Logger
}

// New registers every provider. Nothing is constructed yet.
func New(cfg *config.Config) *App {
	di := do.New()
	do.ProvideValue(di, cfg)
	do.ProvideValue(di, slog.Default())

	do.Provide(di, newStore)
	do.Provide(di, newMetrics)
	do.Provide(di, newEstimator)
	do.Provide(di, newGenerator)
	do.Provide(di, newSelector)
	do.Provide(di, newModes)
	do.Provide(di, newRecorder)
	do.Provide(di, newIndex)
	do.Provide(di, newOrchestrator)
	do.Provide(di, newHTTPServer)

	return &App{di: di, cfg: cfg, logger: slog.Default()}
}

// Orchestrator returns the answer pipeline.
func (a *App) Orchestrator() (*orchestrator.Orchestrator, error) {
	return do.Invoke[*orchestrator.Orchestrator](a.di)
}

// Index returns the chunk index.
func (a *App) Index() (*retrieval.SQLiteIndex, error) {
	return do.Invoke[*retrieval.SQLiteIndex](a.di)
}

// Run serves HTTP until ctx is cancelled, then shuts the server down
// gracefully. The dedicated summarizer is warmed up in the background so the
// first compression does not pay its start-up cost.
func (a *App) Run(ctx context.Context) error {
	srv, err := do.Invoke[*http.Server](a.di)
	if err != nil {
		return fmt.Errorf("app: build http server: %w", err)
	}
	selector, err := do.Invoke[*summarize.Selector](a.di)
	if err != nil {
		return fmt.Errorf("app: build summarizer: %w", err)
	}

	a.logger.Info("kiki: starting", "version", version.Info(), "config", a.cfg.Redacted())

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", srv.Addr, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		strategy := selector.Warm(ctx)
		a.logger.Info("kiki: summarizer ready", "strategy", string(strategy))
		return nil
	})

	g.Go(func() error {
		a.logger.Info("kiki: http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("kiki: http server shutdown error", "err", err)
		}
		return nil
	})

	return g.Wait()
}

// Stop drains the memory recorder and closes the database.
func (a *App) Stop() error {
	return a.di.Shutdown()
}

func newStore(i *do.Injector) (*store.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return store.New(cfg.Database.Path)
}

func newMetrics(*do.Injector) (*observability.Metrics, error) {
	return observability.NewMetrics(metricsNamespace), nil
}

func newEstimator(i *do.Injector) (*tokens.Estimator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.Memory.TokenizerEncoding == "approximate" {
		return tokens.Approximate(), nil
	}
	return tokens.New(cfg.Memory.TokenizerEncoding, do.MustInvoke[*slog.Logger](i)), nil
}

func newGenerator(i *do.Injector) (llm.Generator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	if !cfg.Generation.Enabled() {
		logger.Warn("kiki: no generation endpoint configured, answering is disabled")
		return llm.Unavailable{}, nil
	}
	return llm.NewLangChain(llm.Config{
		BaseURL: cfg.Generation.BaseURL,
		APIKey:  cfg.Generation.APIKey,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout,
	}, logger)
}

func newSelector(i *do.Injector) (*summarize.Selector, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	metrics := do.MustInvoke[*observability.Metrics](i)

	strategy, err := summarize.ParseStrategy(cfg.Summarizer.Backend)
	if err != nil {
		return nil, err
	}
	dedicated := summarize.NewDedicated(summarize.DedicatedConfig{
		BaseURL: cfg.Summarizer.Dedicated.BaseURL,
		APIKey:  cfg.Summarizer.Dedicated.APIKey,
		Model:   cfg.Summarizer.Dedicated.Model,
		Timeout: cfg.Summarizer.Dedicated.Timeout,
	}, logger)
	generation := summarize.NewGeneration(do.MustInvoke[llm.Generator](i), logger)

	return summarize.NewSelector(strategy, dedicated, generation,
		summarize.WithLogger(logger),
		summarize.WithFallbackHook(func(reason string) {
			metrics.SummarizerFallbacks.WithLabelValues(reason).Inc()
		}),
	), nil
}

func newModes(i *do.Injector) (*memory.Modes, error) {
	cfg := do.MustInvoke[*config.Config](i)
	metrics := do.MustInvoke[*observability.Metrics](i)
	return memory.NewModes(memory.Config{
		TokenThreshold:      cfg.Memory.TokenThreshold,
		RecentTurnsKeep:     cfg.Memory.RecentTurnsKeep,
		SummaryCapTokens:    cfg.Memory.SummaryRecompressCapTokens,
		EnableSummarization: cfg.Memory.EnableSummarization,
		AssistantName:       cfg.Assistant.Name,
	},
		do.MustInvoke[*tokens.Estimator](i),
		do.MustInvoke[*summarize.Selector](i),
		memory.WithLogger(do.MustInvoke[*slog.Logger](i)),
		memory.WithCompressionHook(func(m memory.Mode, k memory.CompressionKind) {
			metrics.Compressions.WithLabelValues(string(m), string(k)).Inc()
		}),
	), nil
}

func newRecorder(i *do.Injector) (*memory.Recorder, error) {
	cfg := do.MustInvoke[*config.Config](i)
	metrics := do.MustInvoke[*observability.Metrics](i)
	return memory.NewRecorder(do.MustInvoke[*memory.Modes](i), cfg.Memory.RecorderQueueSize,
		memory.WithRecorderLogger(do.MustInvoke[*slog.Logger](i)),
		memory.WithRecordedHook(func(st memory.Stats) {
			metrics.ObserveMemory(string(st.Mode), st.TotalTokens, st.Turns)
		}),
	), nil
}

func newIndex(i *do.Injector) (*retrieval.SQLiteIndex, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	db, err := do.Invoke[*store.Store](i)
	if err != nil {
		return nil, err
	}

	var embedder retrieval.Embedder
	if cfg.Retrieval.Embedding.Enabled() {
		embedder = retrieval.NewOpenAIEmbedder(retrieval.OpenAIEmbedderConfig{
			APIKey:  cfg.Retrieval.Embedding.APIKey,
			BaseURL: cfg.Retrieval.Embedding.BaseURL,
			Model:   cfg.Retrieval.Embedding.Model,
		})
	} else {
		logger.Warn("kiki: no embedding endpoint configured, RAG questions are disabled")
	}
	return retrieval.NewSQLiteIndex(db.DB(), embedder, logger), nil
}

func newOrchestrator(i *do.Injector) (*orchestrator.Orchestrator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	db, err := do.Invoke[*store.Store](i)
	if err != nil {
		return nil, err
	}
	index, err := do.Invoke[*retrieval.SQLiteIndex](i)
	if err != nil {
		return nil, err
	}

	return orchestrator.New(orchestrator.Config{
		AssistantName: cfg.Assistant.Name,
		Domain:        cfg.Assistant.Domain,
		TopK:          cfg.Retrieval.TopK,
		Tiers: relevance.Tiers{
			Primary:  cfg.Retrieval.PrimaryRelevanceThreshold,
			Fallback: cfg.Retrieval.FallbackRelevanceThreshold,
		},
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		MaxPromptChars:  cfg.Generation.MaxPromptChars,
		MaxTokens:       cfg.Generation.MaxTokens,
		RAGTemperature:  cfg.Generation.RAGTemperature,
		ChatTemperature: cfg.Generation.ChatTemperature,
		MaxConcurrent:   int64(cfg.Generation.MaxConcurrent),
	},
		do.MustInvoke[llm.Generator](i),
		index,
		do.MustInvoke[*memory.Modes](i),
		do.MustInvoke[*memory.Recorder](i),
		orchestrator.WithLogger(do.MustInvoke[*slog.Logger](i)),
		orchestrator.WithMetrics(do.MustInvoke[*observability.Metrics](i)),
		orchestrator.WithInteractionLog(db),
	), nil
}

func newHTTPServer(i *do.Injector) (*http.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	orch, err := do.Invoke[*orchestrator.Orchestrator](i)
	if err != nil {
		return nil, err
	}
	db := do.MustInvoke[*store.Store](i)

	api := httpapi.New(httpapi.Options{
		ModelName:          cfg.Generation.Model,
		DatabaseName:       cfg.Assistant.Domain + " knowledge base",
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		RequestTimeout:     cfg.HTTP.RequestTimeout,
	},
		orch,
		do.MustInvoke[*memory.Modes](i),
		db,
		do.MustInvoke[*retrieval.SQLiteIndex](i),
		do.MustInvoke[*observability.Metrics](i),
		do.MustInvoke[*slog.Logger](i),
	)

	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Generation can take as long as the request timeout; leave room
		// for writing the answer.
		WriteTimeout: cfg.HTTP.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}
