package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestForTelegram(t *testing.T) {
	errRec := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	if !forTelegram(context.Background(), errRec) {
		t.Error("error records should be routed to telegram")
	}

	info := slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)
	if forTelegram(context.Background(), info) {
		t.Error("plain info records should not be routed to telegram")
	}

	info.AddAttrs(slog.Bool(TelegramAttr, true))
	if !forTelegram(context.Background(), info) {
		t.Error("tagged records should be routed to telegram")
	}
}

func TestInit_WritesToOutput(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if err := Init(Options{Level: "warn", Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	slog.Info("hidden")
	slog.Warn("memory: compression skipped")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "compression skipped") {
		t.Errorf("warn record missing from output: %q", out)
	}
}
