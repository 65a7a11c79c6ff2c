package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kiki/internal/kiki/app"
	"github.com/bdobrica/Kiki/internal/kiki/memory"
	"github.com/bdobrica/Kiki/internal/kiki/orchestrator"
)

func newAskCmd(load func() (*app.App, error)) *cobra.Command {
	var (
		useRAG    bool
		noSources bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Stop() //nolint:errcheck

			orch, err := a.Orchestrator()
			if err != nil {
				return err
			}

			mode := memory.ModeChat
			if useRAG {
				mode = memory.ModeRAG
			}
			ans, err := orch.Ask(cmd.Context(), orchestrator.Request{
				Question:       strings.Join(args, " "),
				Mode:           mode,
				IncludeSources: !noSources,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
			return err
		},
	}
	cmd.Flags().BoolVar(&useRAG, "rag", false, "answer from the knowledge base")
	cmd.Flags().BoolVar(&noSources, "no-sources", false, "omit the sources trailer from RAG answers")
	return cmd
}
