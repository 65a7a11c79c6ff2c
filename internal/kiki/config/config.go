// Package config loads Kiki's YAML configuration, applies KIKI_* environment
// overrides and validates the result.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Kiki/common/environment"
	"github.com/bdobrica/Kiki/common/redact"
)

type Config struct {
	Log        Log        `yaml:"log"`
	HTTP       HTTP       `yaml:"http"`
	Database   Database   `yaml:"database"`
	Assistant  Assistant  `yaml:"assistant"`
	Generation Generation `yaml:"generation"`
	Summarizer Summarizer `yaml:"summarizer"`
	Memory     Memory     `yaml:"memory"`
	Retrieval  Retrieval  `yaml:"retrieval"`
}

type Log struct {
	// Minimum level: debug, info, warn or error
	Level string `yaml:"level" example:"info" validate:"omitempty,oneof=debug info warn warning error"`
	// Telegram alert sink, disabled when the token is empty
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890" validate:"required_with=Token"`
}

type HTTP struct {
	Addr string `yaml:"addr" example:":5000" validate:"required"`
	// Chat requests allowed per client per minute, 0 disables the limiter
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute" example:"20" validate:"gte=0"`
	RequestTimeout     time.Duration `yaml:"request_timeout" example:"120s" validate:"gt=0"`
}

type Database struct {
	// SQLite file holding the chunk index and the interaction log
	Path string `yaml:"path" example:"./kiki.db" validate:"required"`
}

type Assistant struct {
	Name string `yaml:"name" example:"Kiki" validate:"required"`
	// Subject the knowledge base covers, named in refusals
	Domain string `yaml:"domain" example:"Ghana" validate:"required"`
}

type Generation struct {
	// OpenAI-compatible API base url, e.g. a llama.cpp or vLLM server
	BaseURL         string        `yaml:"base_url" example:"http://localhost:8080/v1" validate:"omitempty,url"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model" example:"gemma2-2b" validate:"required"`
	MaxTokens       int           `yaml:"max_tokens" example:"1500" validate:"gt=0"`
	RAGTemperature  float64       `yaml:"rag_temperature" example:"0.7" validate:"gte=0,lte=2"`
	ChatTemperature float64       `yaml:"chat_temperature" example:"0.75" validate:"gte=0,lte=2"`
	MaxPromptChars  int           `yaml:"max_prompt_chars" example:"4000" validate:"gt=0"`
	MaxConcurrent   int           `yaml:"max_concurrent" example:"4" validate:"gt=0"`
	Timeout         time.Duration `yaml:"timeout" example:"120s" validate:"gt=0"`
}

// Enabled reports whether a generation endpoint is configured.
func (g Generation) Enabled() bool { return g.BaseURL != "" || g.APIKey != "" }

type Summarizer struct {
	// dedicated (alias bart) or generation (alias gemma)
	Backend   string    `yaml:"backend" example:"dedicated" validate:"oneof=dedicated generation bart gemma"`
	Dedicated Dedicated `yaml:"dedicated"`
}

type Dedicated struct {
	BaseURL string        `yaml:"base_url" example:"https://api-inference.huggingface.co" validate:"omitempty,url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model" example:"facebook/bart-large-cnn" validate:"required"`
	Timeout time.Duration `yaml:"timeout" example:"60s" validate:"gt=0"`
}

// Memory configures the conversation stores. TokenizerEncoding is a tiktoken
// encoding name, or "approximate" for the len/4 estimate.
type Memory struct {
	TokenThreshold             int    `yaml:"token_threshold" example:"2000" validate:"gt=0"`
	RecentTurnsKeep            int    `yaml:"recent_turns_keep" example:"3" validate:"gte=1"`
	SummaryRecompressCapTokens int    `yaml:"summary_recompress_cap_tokens" example:"300" validate:"gt=0"`
	EnableSummarization        bool   `yaml:"enable_summarization" example:"true"`
	TokenizerEncoding          string `yaml:"tokenizer_encoding" example:"cl100k_base"`
	RecorderQueueSize          int    `yaml:"recorder_queue_size" example:"64" validate:"gt=0"`
}

type Retrieval struct {
	TopK int `yaml:"top_k" example:"3" validate:"gt=0"`
	// Optional; null disables the gate at that tier
	PrimaryRelevanceThreshold  *float64  `yaml:"primary_relevance_threshold" example:"1.2" validate:"omitempty,gte=0"`
	FallbackRelevanceThreshold *float64  `yaml:"fallback_relevance_threshold" example:"1.5" validate:"omitempty,gte=0"`
	MaxContextChars            int       `yaml:"max_context_chars" example:"2000" validate:"gt=0"`
	Embedding                  Embedding `yaml:"embedding"`
}

type Embedding struct {
	BaseURL string `yaml:"base_url" example:"https://api.openai.com/v1" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model" example:"text-embedding-3-small" validate:"required"`
}

// Enabled reports whether an embeddings endpoint is configured.
func (e Embedding) Enabled() bool { return e.BaseURL != "" || e.APIKey != "" }

// Default returns the configuration used for every key the file omits.
func Default() Config {
	primary, fallback := 1.2, 1.5
	return Config{
		Log:      Log{Level: "info"},
		HTTP:     HTTP{Addr: ":5000", RateLimitPerMinute: 20, RequestTimeout: 120 * time.Second},
		Database: Database{Path: "./kiki.db"},
		Assistant: Assistant{
			Name:   "Kiki",
			Domain: "Ghana",
		},
		Generation: Generation{
			Model:           "gemma2-2b",
			MaxTokens:       1500,
			RAGTemperature:  0.7,
			ChatTemperature: 0.75,
			MaxPromptChars:  4000,
			MaxConcurrent:   4,
			Timeout:         120 * time.Second,
		},
		Summarizer: Summarizer{
			Backend: "dedicated",
			Dedicated: Dedicated{
				BaseURL: "https://api-inference.huggingface.co",
				Model:   "facebook/bart-large-cnn",
				Timeout: 60 * time.Second,
			},
		},
		Memory: Memory{
			TokenThreshold:             2000,
			RecentTurnsKeep:            3,
			SummaryRecompressCapTokens: 300,
			EnableSummarization:        true,
			TokenizerEncoding:          "cl100k_base",
			RecorderQueueSize:          64,
		},
		Retrieval: Retrieval{
			TopK:                       3,
			PrimaryRelevanceThreshold:  &primary,
			FallbackRelevanceThreshold: &fallback,
			MaxContextChars:            2000,
			Embedding:                  Embedding{Model: "text-embedding-3-small"},
		},
	}
}

// Load reads path on top of Default, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	result := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, oops.Code("config_read").With("path", path).Errorf("failed to read config file: %w", err)
		}
		if err = yaml.Unmarshal(data, &result); err != nil {
			return nil, oops.Code("config_parse").With("path", path).Errorf("failed to parse YAML config: %w", err)
		}
	}

	applyEnv(&result)

	if err := Validate(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate checks struct constraints and the cross-field rules the tags
// cannot express.
func Validate(c *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return oops.Code("config_invalid").Errorf("failed to validate config: %w", err)
	}
	p, f := c.Retrieval.PrimaryRelevanceThreshold, c.Retrieval.FallbackRelevanceThreshold
	if p != nil && f != nil && *f < *p {
		return oops.Code("config_invalid").
			With("primary", *p, "fallback", *f).
			Wrap(errors.New("fallback relevance threshold must not be stricter than the primary one"))
	}
	return nil
}

func applyEnv(c *Config) {
	c.Log.Level = environment.StringOr("KIKI_LOG_LEVEL", c.Log.Level)
	c.Log.Telegram.Token = environment.StringOr("KIKI_TELEGRAM_TOKEN", c.Log.Telegram.Token)
	c.Log.Telegram.ChatID = environment.StringOr("KIKI_TELEGRAM_CHAT_ID", c.Log.Telegram.ChatID)

	c.HTTP.Addr = environment.StringOr("KIKI_HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.RateLimitPerMinute = environment.IntOr("KIKI_HTTP_RATE_LIMIT_PER_MINUTE", c.HTTP.RateLimitPerMinute)
	c.HTTP.RequestTimeout = environment.DurationOr("KIKI_HTTP_REQUEST_TIMEOUT", c.HTTP.RequestTimeout)

	c.Database.Path = environment.StringOr("KIKI_DATABASE_PATH", c.Database.Path)
	c.Assistant.Domain = environment.StringOr("KIKI_ASSISTANT_DOMAIN", c.Assistant.Domain)

	c.Generation.BaseURL = environment.StringOr("KIKI_GENERATION_BASE_URL", c.Generation.BaseURL)
	c.Generation.APIKey = environment.StringOr("KIKI_GENERATION_API_KEY", c.Generation.APIKey)
	c.Generation.Model = environment.StringOr("KIKI_GENERATION_MODEL", c.Generation.Model)
	c.Generation.MaxConcurrent = environment.IntOr("KIKI_GENERATION_MAX_CONCURRENT", c.Generation.MaxConcurrent)
	c.Generation.RAGTemperature = environment.FloatOr("KIKI_GENERATION_RAG_TEMPERATURE", c.Generation.RAGTemperature)
	c.Generation.ChatTemperature = environment.FloatOr("KIKI_GENERATION_CHAT_TEMPERATURE", c.Generation.ChatTemperature)

	c.Summarizer.Backend = environment.StringOr("KIKI_SUMMARIZER_BACKEND", c.Summarizer.Backend)
	c.Summarizer.Dedicated.BaseURL = environment.StringOr("KIKI_SUMMARIZER_BASE_URL", c.Summarizer.Dedicated.BaseURL)
	c.Summarizer.Dedicated.APIKey = environment.StringOr("KIKI_SUMMARIZER_API_KEY",
		environment.StringOr("HF_TOKEN", c.Summarizer.Dedicated.APIKey))

	c.Memory.TokenThreshold = environment.IntOr("KIKI_MEMORY_TOKEN_THRESHOLD", c.Memory.TokenThreshold)
	c.Memory.RecentTurnsKeep = environment.IntOr("KIKI_MEMORY_RECENT_TURNS_KEEP", c.Memory.RecentTurnsKeep)
	c.Memory.SummaryRecompressCapTokens = environment.IntOr("KIKI_MEMORY_SUMMARY_CAP_TOKENS", c.Memory.SummaryRecompressCapTokens)
	c.Memory.EnableSummarization = environment.BoolOr("KIKI_MEMORY_ENABLE_SUMMARIZATION", c.Memory.EnableSummarization)
	c.Memory.TokenizerEncoding = environment.StringOr("KIKI_MEMORY_TOKENIZER_ENCODING", c.Memory.TokenizerEncoding)

	c.Retrieval.PrimaryRelevanceThreshold = environment.OptionalFloat("KIKI_RETRIEVAL_PRIMARY_THRESHOLD", c.Retrieval.PrimaryRelevanceThreshold)
	c.Retrieval.FallbackRelevanceThreshold = environment.OptionalFloat("KIKI_RETRIEVAL_FALLBACK_THRESHOLD", c.Retrieval.FallbackRelevanceThreshold)
	c.Retrieval.Embedding.BaseURL = environment.StringOr("KIKI_EMBEDDING_BASE_URL", c.Retrieval.Embedding.BaseURL)
	c.Retrieval.Embedding.APIKey = environment.StringOr("KIKI_EMBEDDING_API_KEY", c.Retrieval.Embedding.APIKey)
	c.Retrieval.Embedding.Model = environment.StringOr("KIKI_EMBEDDING_MODEL", c.Retrieval.Embedding.Model)
}

// Redacted returns the settings worth logging at startup with credentials
// masked.
func (c *Config) Redacted() map[string]any {
	return redact.Map(map[string]any{
		"http_addr":            c.HTTP.Addr,
		"database":             c.Database.Path,
		"domain":               c.Assistant.Domain,
		"generation_base_url":  c.Generation.BaseURL,
		"generation_model":     c.Generation.Model,
		"generation_key":       redact.Mask(c.Generation.APIKey),
		"summarizer_backend":   c.Summarizer.Backend,
		"summarizer_model":     c.Summarizer.Dedicated.Model,
		"summarizer_key":       redact.Mask(c.Summarizer.Dedicated.APIKey),
		"embedding_model":      c.Retrieval.Embedding.Model,
		"embedding_key":        redact.Mask(c.Retrieval.Embedding.APIKey),
		"telegram_token":       c.Log.Telegram.Token,
		"token_threshold":      c.Memory.TokenThreshold,
		"recent_turns_keep":    c.Memory.RecentTurnsKeep,
		"enable_summarization": c.Memory.EnableSummarization,
	})
}
