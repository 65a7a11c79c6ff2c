// Package tokens estimates how many model tokens a piece of text costs.
//
// The estimate drives memory compression decisions, so it only needs to be
// deterministic and monotonic in text length; it does not need to match the
// generation model's own tokenizer exactly.
package tokens

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// charsPerToken is the divisor of the approximate estimate. Deliberately
// coarse; callers size thresholds with this slack in mind.
const charsPerToken = 4

// Estimator counts tokens with a BPE encoding, degrading to len/4 when the
// encoding is unavailable. It is safe for concurrent use.
type Estimator struct {
	encode func(string) []int
	name   string
	logger *slog.Logger

	degradeOnce sync.Once
}

// New loads encoding (DefaultEncoding when empty). When the encoding cannot
// be loaded the returned estimator uses the approximation and logs a warning;
// New never fails.
func New(encoding string, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("tokens: tokenizer unavailable, using character approximation",
			"encoding", encoding, "err", err)
		return &Estimator{name: "approximate", logger: logger}
	}
	return &Estimator{
		encode: func(s string) []int { return enc.Encode(s, nil, nil) },
		name:   "tiktoken:" + encoding,
		logger: logger,
	}
}

// NewWithEncoder wraps an arbitrary encode function. Intended for tests and
// for callers that already hold a tokenizer.
func NewWithEncoder(name string, encode func(string) []int) *Estimator {
	return &Estimator{encode: encode, name: name, logger: slog.Default()}
}

// Approximate returns an estimator that always uses len(text)/4.
func Approximate() *Estimator {
	return &Estimator{name: "approximate", logger: slog.Default()}
}

// Mode reports which path the estimator is on.
func (e *Estimator) Mode() string { return e.name }

// Estimate returns the token cost of text. It never fails: a tokenizer
// panic switches this call to the approximation.
func (e *Estimator) Estimate(text string) (n int) {
	if text == "" {
		return 0
	}
	if e.encode == nil {
		return approximate(text)
	}
	defer func() {
		if r := recover(); r != nil {
			e.degradeOnce.Do(func() {
				e.logger.Warn("tokens: tokenizer failed, using character approximation",
					"mode", e.name, "err", fmt.Sprint(r))
			})
			n = approximate(text)
		}
	}()
	return len(e.encode(text))
}

func approximate(text string) int {
	return len(text) / charsPerToken
}
