package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kiki/internal/kiki/app"
	"github.com/bdobrica/Kiki/internal/kiki/retrieval"
)

const maxChunkLine = 1 << 20

// chunkLine is one line of the JSONL input produced by the document
// chunking pipeline.
type chunkLine struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Page   int    `json:"page"`
	URL    string `json:"url"`
	Text   string `json:"text"`
}

func newIndexCmd(load func() (*app.App, error)) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed pre-chunked documents from a JSONL file into the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open %s: %w", file, err)
				}
				defer f.Close()
				in = f
			}
			docs, err := readChunks(in)
			if err != nil {
				return err
			}

			a, err := load()
			if err != nil {
				return err
			}
			defer a.Stop() //nolint:errcheck

			idx, err := a.Index()
			if err != nil {
				return err
			}
			n, err := idx.Upsert(cmd.Context(), docs)
			if err != nil {
				return fmt.Errorf("indexed %d of %d chunks: %w", n, len(docs), err)
			}
			total, err := idx.Count(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks (%d in knowledge base)\n", n, total)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSONL file with {source, page, url, text} lines, - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readChunks(r io.Reader) ([]retrieval.Document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxChunkLine)

	var docs []retrieval.Document
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var c chunkLine
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(c.Text) == "" {
			return nil, fmt.Errorf("line %d: empty text", line)
		}
		if c.Source == "" {
			c.Source = "Unknown"
		}
		docs = append(docs, retrieval.Document{
			ID:     c.ID,
			Source: retrieval.Source{Name: c.Source, Page: c.Page, URL: c.URL},
			Text:   c.Text,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	return docs, nil
}
