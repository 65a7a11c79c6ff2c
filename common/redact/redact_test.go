package redact_test

import (
	"testing"

	"github.com/bdobrica/Kiki/common/redact"
)

func TestString_RedactsSensitiveValues(t *testing.T) {
	key := "hf_live_0123456789"
	line := "dedicated summarizer init failed: bad key hf_live_0123456789"
	got := redact.String(line, key)
	const want = "dedicated summarizer init failed: bad key [REDACTED]"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestString_SkipsShortValues(t *testing.T) {
	line := "abc token"
	if got := redact.String(line, "abc"); got != line {
		t.Fatalf("short value should not be redacted; got %q", got)
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"short":              "[REDACTED]",
		"sk-abcdefghijklmno": "...lmno",
	}
	for in, want := range cases {
		if got := redact.Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMap_RedactsSensitiveKeys(t *testing.T) {
	out := redact.Map(map[string]any{
		"model":          "gemma2-2b",
		"api_key":        "sk-123456",
		"telegram_token": "123:abc",
		"max_tokens":     1500,
	})
	if out["model"] != "gemma2-2b" {
		t.Errorf("model should not be redacted, got %v", out["model"])
	}
	if out["api_key"] != "[REDACTED]" || out["telegram_token"] != "[REDACTED]" {
		t.Errorf("secrets not redacted: %v", out)
	}
	if out["max_tokens"] != 1500 {
		t.Errorf("non-string value changed: %v", out["max_tokens"])
	}
}

func TestMap_DoesNotMutateOriginal(t *testing.T) {
	m := map[string]any{"api_key": "secret-value"}
	redact.Map(m)
	if m["api_key"] != "secret-value" {
		t.Error("Map mutated its input")
	}
}
