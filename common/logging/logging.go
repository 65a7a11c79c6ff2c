// Package logging installs the process-wide slog handler: a colored console
// handler on stderr, plus an optional Telegram sink that receives error
// records and records tagged with a "telegram" attribute.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
	slogtelegram "github.com/samber/slog-telegram/v2"
)

// TelegramAttr tags a record for delivery to Telegram regardless of level.
const TelegramAttr = "telegram"

// Options configures Init.
type Options struct {
	Level          string
	TelegramToken  string
	TelegramChatID string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Preinit installs a debug console logger used until configuration has been
// loaded.
func Preinit() {
	slog.SetDefault(slog.New(consoleHandler(os.Stderr, slog.LevelDebug)))
}

// Init replaces the default logger according to opts.
func Init(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	router := slogmulti.Router().Add(consoleHandler(out, level))

	if opts.TelegramToken != "" {
		router = router.Add(
			slogtelegram.Option{
				Level:     slog.LevelDebug,
				Token:     opts.TelegramToken,
				Username:  opts.TelegramChatID,
				AddSource: true,
			}.NewTelegramHandler(),
			forTelegram,
		)
	}

	slog.SetDefault(slog.New(router.Handler()))
	return nil
}

// ParseLevel maps a config string onto a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

func consoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return console.NewHandler(w, &console.HandlerOptions{
		AddSource: level == slog.LevelDebug,
		Level:     level,
	})
}

func forTelegram(_ context.Context, r slog.Record) bool {
	if r.Level >= slog.LevelError {
		return true
	}
	tagged := false
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == TelegramAttr {
			tagged = true
			return false
		}
		return true
	})
	return tagged
}
