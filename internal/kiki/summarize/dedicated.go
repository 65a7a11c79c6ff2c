package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Kiki/common/redact"
	"github.com/bdobrica/Kiki/common/retry"
)

const (
	defaultDedicatedBase    = "https://api-inference.huggingface.co"
	defaultDedicatedModel   = "facebook/bart-large-cnn"
	defaultDedicatedTimeout = 60 * time.Second

	// DedicatedChunkChars is the per-chunk character budget of the
	// dedicated model, sized to its input window.
	DedicatedChunkChars = 4000

	warmupText = "Kiki is a helpful assistant that answers questions about Ghana. " +
		"This short text is used to check that the summarization model is loaded."
)

// DedicatedConfig configures the dedicated summarization model.
type DedicatedConfig struct {
	// BaseURL of a Hugging Face compatible inference API.
	BaseURL string
	APIKey  string
	// Model is appended to BaseURL as /models/{Model}.
	Model   string
	Timeout time.Duration
	// ChunkChars overrides DedicatedChunkChars.
	ChunkChars int
}

// Dedicated summarizes with an encoder-decoder summarization model served by
// an inference endpoint.
type Dedicated struct {
	cfg    DedicatedConfig
	client *http.Client
	logger *slog.Logger
}

func NewDedicated(cfg DedicatedConfig, logger *slog.Logger) *Dedicated {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDedicatedBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultDedicatedModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultDedicatedTimeout
	}
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = DedicatedChunkChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dedicated{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type dedicatedParams struct {
	MaxLength int  `json:"max_length"`
	MinLength int  `json:"min_length"`
	DoSample  bool `json:"do_sample"`
}

// dedicatedOptions are inference API flags. WaitForModel makes the endpoint
// block until a cold model is loaded instead of answering 503.
type dedicatedOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type dedicatedRequest struct {
	Inputs     string            `json:"inputs"`
	Parameters dedicatedParams   `json:"parameters"`
	Options    *dedicatedOptions `json:"options,omitempty"`
}

type dedicatedResult struct {
	SummaryText string `json:"summary_text"`
}

type dedicatedError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
}

// Init checks that the model answers, waiting for a cold model to load. A
// failure here is treated by the Selector as permanent for the life of the
// process.
func (d *Dedicated) Init(ctx context.Context) error {
	_, err := d.call(ctx, warmupText, dedicatedParams{MaxLength: 20, MinLength: 5}, &dedicatedOptions{WaitForModel: true})
	if err != nil {
		return fmt.Errorf("summarizer dedicated: init %s: %w", d.cfg.Model, err)
	}
	return nil
}

// Summarize implements Summarizer.
func (d *Dedicated) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return chunked(ctx, text, d.cfg.ChunkChars, d.pass, d.logger)
}

func (d *Dedicated) pass(ctx context.Context, text string, chunk bool) (string, error) {
	p := dedicatedParams{MaxLength: 100, MinLength: 30}
	if chunk {
		p = dedicatedParams{MaxLength: 80, MinLength: 20}
	}
	return d.call(ctx, text, p, nil)
}

func (d *Dedicated) call(ctx context.Context, text string, params dedicatedParams, opts *dedicatedOptions) (string, error) {
	data, err := json.Marshal(dedicatedRequest{Inputs: text, Parameters: params, Options: opts})
	if err != nil {
		return "", fmt.Errorf("summarizer dedicated: marshal request: %w", err)
	}
	url := strings.TrimRight(d.cfg.BaseURL, "/") + "/models/" + d.cfg.Model

	rc := retry.DefaultConfig
	rc.Name = "summarize.dedicated"
	return retry.Value(ctx, rc, func() (string, error) {
		return d.post(ctx, url, data)
	})
}

// post performs one HTTP round trip. Client errors are marked permanent;
// 429/5xx (including the 503 returned while a model is loading) are retried.
func (d *Dedicated) post(ctx context.Context, url string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("summarizer dedicated: create http request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarizer dedicated: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("summarizer dedicated: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr dedicatedError
		_ = json.Unmarshal(raw, &apiErr)
		msg := redact.String(apiErr.Error, d.cfg.APIKey)
		if apiErr.EstimatedTime > 0 {
			msg += fmt.Sprintf(" (model loading, estimated %.0fs)", apiErr.EstimatedTime)
		}
		err := fmt.Errorf("summarizer dedicated: HTTP %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", err
		}
		return "", retry.Permanent(err)
	}

	var results []dedicatedResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return "", retry.Permanent(fmt.Errorf("summarizer dedicated: decode response: %w", err))
	}
	if len(results) == 0 {
		return "", retry.Permanent(errors.New("summarizer dedicated: no summary returned"))
	}
	return strings.TrimSpace(results[0].SummaryText), nil
}

var _ Summarizer = (*Dedicated)(nil)
