package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kiki/common/environment"
	"github.com/bdobrica/Kiki/common/logging"
	"github.com/bdobrica/Kiki/internal/kiki/app"
	"github.com/bdobrica/Kiki/internal/kiki/config"
)

const defaultConfigFile = "config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "kiki",
		Short:         "Kiki: a retrieval-augmented chat assistant with conversational memory",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", environment.StringOr("KIKI_CONFIG", ""),
		"path to the YAML config file (default ./config.yaml when present)")

	load := func() (*app.App, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if err := logging.Init(logging.Options{
			Level:          cfg.Log.Level,
			TelegramToken:  cfg.Log.Telegram.Token,
			TelegramChatID: cfg.Log.Telegram.ChatID,
		}); err != nil {
			return nil, fmt.Errorf("logging init failed: %w", err)
		}
		return app.New(cfg), nil
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(load),
		newAskCmd(load),
		newIndexCmd(load),
	)
	return rootCmd
}

// loadConfig falls back to ./config.yaml when no path was given, and to
// built-in defaults when that file does not exist either.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", defaultConfigFile, err)
		}
	}
	return config.Load(path)
}
