package environment_test

import (
	"testing"
	"time"

	"github.com/bdobrica/Kiki/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("KIKI_TEST_STRING", "  gemma  ")
	if got := environment.StringOr("KIKI_TEST_STRING", "default"); got != "gemma" {
		t.Errorf("expected trimmed %q, got %q", "gemma", got)
	}
	t.Setenv("KIKI_TEST_BLANK", "   ")
	if got := environment.StringOr("KIKI_TEST_BLANK", "default"); got != "default" {
		t.Errorf("blank value should fall back, got %q", got)
	}
	if got := environment.StringOr("KIKI_TEST_STRING_MISSING", "default"); got != "default" {
		t.Errorf("expected %q, got %q", "default", got)
	}
}

func TestBoolOr(t *testing.T) {
	t.Setenv("KIKI_TEST_BOOL", "false")
	if environment.BoolOr("KIKI_TEST_BOOL", true) {
		t.Error("expected false")
	}
	t.Setenv("KIKI_TEST_BOOL", "maybe")
	if !environment.BoolOr("KIKI_TEST_BOOL", true) {
		t.Error("unparsable value should return default")
	}
}

func TestIntOr(t *testing.T) {
	t.Setenv("KIKI_TEST_INT", "2000")
	if got := environment.IntOr("KIKI_TEST_INT", 0); got != 2000 {
		t.Errorf("expected 2000, got %d", got)
	}
	t.Setenv("KIKI_TEST_INT_BAD", "two thousand")
	if got := environment.IntOr("KIKI_TEST_INT_BAD", 3); got != 3 {
		t.Errorf("expected default 3 for bad value, got %d", got)
	}
}

func TestFloatOr(t *testing.T) {
	t.Setenv("KIKI_TEST_FLOAT", "0.75")
	if got := environment.FloatOr("KIKI_TEST_FLOAT", 0.7); got != 0.75 {
		t.Errorf("expected 0.75, got %v", got)
	}
	if got := environment.FloatOr("KIKI_TEST_FLOAT_MISSING", 0.7); got != 0.7 {
		t.Errorf("expected default 0.7, got %v", got)
	}
}

func TestDurationOr(t *testing.T) {
	t.Setenv("KIKI_TEST_DUR", "90s")
	if got := environment.DurationOr("KIKI_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
}

func TestOptionalFloat(t *testing.T) {
	def := 1.2

	if got := environment.OptionalFloat("KIKI_TEST_OPT_MISSING", &def); got != &def {
		t.Errorf("unset variable should keep current pointer")
	}

	t.Setenv("KIKI_TEST_OPT", "1.5")
	got := environment.OptionalFloat("KIKI_TEST_OPT", &def)
	if got == nil || *got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}

	t.Setenv("KIKI_TEST_OPT", "none")
	if got := environment.OptionalFloat("KIKI_TEST_OPT", &def); got != nil {
		t.Errorf("expected nil for explicit none, got %v", *got)
	}

	t.Setenv("KIKI_TEST_OPT", "abc")
	if got := environment.OptionalFloat("KIKI_TEST_OPT", &def); got != &def {
		t.Errorf("unparsable value should keep current pointer")
	}
}
