package summarize

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSplitFromEnd_SuffixFirst(t *testing.T) {
	pieces := splitFromEnd([]rune("abcdefghij"), 4)
	want := []string{"ghij", "cdef", "ab"}
	if len(pieces) != len(want) {
		t.Fatalf("got %v, want %v", pieces, want)
	}
	for i := range want {
		if pieces[i] != want[i] {
			t.Errorf("piece %d = %q, want %q", i, pieces[i], want[i])
		}
	}
}

func TestSplitFromEnd_ExactMultiple(t *testing.T) {
	pieces := splitFromEnd([]rune("abcdefgh"), 4)
	if len(pieces) != 2 || pieces[0] != "efgh" || pieces[1] != "abcd" {
		t.Fatalf("unexpected pieces %v", pieces)
	}
}

// halving returns the first half of its input, recording every call.
type halving struct {
	calls []string
}

func (h *halving) pass(_ context.Context, text string, _ bool) (string, error) {
	h.calls = append(h.calls, text)
	r := []rune(text)
	return string(r[:len(r)/2]), nil
}

func TestChunked_DirectWhenWithinBudget(t *testing.T) {
	h := &halving{}
	out, err := chunked(context.Background(), "abcdefgh", 10, h.pass, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "abcd" || len(h.calls) != 1 {
		t.Fatalf("got %q after %d calls", out, len(h.calls))
	}
}

func TestChunked_TerminatesAndSummarizesSuffixFirst(t *testing.T) {
	h := &halving{}
	text := strings.Repeat("a", 1000) + strings.Repeat("z", 1000)

	out, err := chunked(context.Background(), text, 300, h.pass, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == "" {
		t.Fatal("expected a non-empty summary")
	}
	if len(h.calls) == 0 || h.calls[0] != strings.Repeat("z", 300) {
		t.Fatalf("first chunk summarized must be the suffix, got %q", h.calls[0])
	}
	if len([]rune(out)) > 300 {
		t.Fatalf("final summary longer than budget: %d", len(out))
	}
}

func TestChunked_FiveTimesBudgetIsBounded(t *testing.T) {
	const budget = 300
	var calls, direct int
	one := func(_ context.Context, text string, chunk bool) (string, error) {
		calls++
		if !chunk {
			direct++
		}
		r := []rune(text)
		return string(r[:len(r)/2]), nil
	}

	out, err := chunked(context.Background(), strings.Repeat("x", 5*budget), budget, one, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1500 -> 5 chunks -> 754 chars -> 3 chunks -> 379 chars -> 2 chunks ->
	// 190 chars -> one direct pass.
	if calls != 11 || direct != 1 {
		t.Fatalf("got %d calls (%d direct), want 11 (1 direct)", calls, direct)
	}
	if n := len([]rune(out)); n != 95 {
		t.Fatalf("final summary has %d chars, want 95", n)
	}
}

func TestChunked_ReassemblesInChronologicalOrder(t *testing.T) {
	var joined []string
	one := func(_ context.Context, text string, chunk bool) (string, error) {
		if chunk {
			return text[:1], nil
		}
		joined = append(joined, text)
		return "final", nil
	}
	// chunks "klmno", "fghij", "abcde" -> summaries "k", "f", "a"
	out, err := chunked(context.Background(), "abcdefghijklmno", 5, one, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "final" {
		t.Fatalf("got %q", out)
	}
	if len(joined) != 1 || joined[0] != "a f k" {
		t.Fatalf("expected chronological join %q, got %v", "a f k", joined)
	}
}

func TestChunked_SkipsFailedChunks(t *testing.T) {
	one := func(_ context.Context, text string, _ bool) (string, error) {
		if strings.HasPrefix(text, "b") {
			return "", errors.New("model hiccup")
		}
		return "ok-" + text[:1], nil
	}
	out, err := chunked(context.Background(), "aaaabbbb", 4, one, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok-a" {
		t.Fatalf("expected only the surviving chunk summary, got %q", out)
	}
}

func TestChunked_AllChunksFailIsEmpty(t *testing.T) {
	one := func(context.Context, string, bool) (string, error) {
		return "", errors.New("down")
	}
	out, err := chunked(context.Background(), strings.Repeat("x", 50), 10, one, slog.Default())
	if err != nil {
		t.Fatalf("all-chunks failure must not surface as an error, got %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty summary, got %q", out)
	}
}

func TestChunked_DirectFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	one := func(context.Context, string, bool) (string, error) { return "", boom }
	if _, err := chunked(context.Background(), "short", 10, one, slog.Default()); !errors.Is(err, boom) {
		t.Fatalf("expected direct pass error, got %v", err)
	}
}

func TestChunked_NonShrinkingBackendStops(t *testing.T) {
	calls := 0
	one := func(_ context.Context, text string, _ bool) (string, error) {
		calls++
		return text + text, nil
	}
	out, err := chunked(context.Background(), strings.Repeat("q", 40), 10, one, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != strings.Repeat("q", 20) {
		t.Fatalf("expected newest chunk summary, got %q", out)
	}
	if calls != 4 {
		t.Fatalf("expected a single pass over 4 chunks, got %d calls", calls)
	}
}

func TestChunked_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := &halving{}
	if _, err := chunked(ctx, strings.Repeat("x", 100), 10, h.pass, slog.Default()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseStrategy(t *testing.T) {
	cases := map[string]Strategy{
		"":           StrategyDedicated,
		"bart":       StrategyDedicated,
		"Dedicated":  StrategyDedicated,
		"gemma":      StrategyGeneration,
		"generation": StrategyGeneration,
	}
	for in, want := range cases {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStrategy("t5"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
