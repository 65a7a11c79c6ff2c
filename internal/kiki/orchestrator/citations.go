package orchestrator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/elliotchance/pie/v2"

	"github.com/bdobrica/Kiki/internal/kiki/retrieval"
)

// Citation is one deduplicated source with every page it was cited from.
type Citation struct {
	Source string `json:"source"`
	Pages  []int  `json:"pages,omitempty"`
	URL    string `json:"url,omitempty"`
}

// collectCitations merges sources by name in first-seen order. Pages are
// sorted and unique; the first non-empty URL wins.
func collectCitations(sources []retrieval.Source) []Citation {
	var out []Citation
	index := map[string]int{}
	for _, s := range sources {
		name := s.Name
		if name == "" {
			name = "Unknown"
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, Citation{Source: name, URL: s.URL})
		}
		if out[i].URL == "" {
			out[i].URL = s.URL
		}
		if s.Page > 0 && !pie.Contains(out[i].Pages, s.Page) {
			out[i].Pages = append(out[i].Pages, s.Page)
		}
	}
	for i := range out {
		out[i].Pages = pie.Sort(out[i].Pages)
	}
	return out
}

// formatCitations renders the "Sources:" trailer appended to RAG answers.
func formatCitations(cs []Citation) string {
	if len(cs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nSources:\n")
	for i, c := range cs {
		fmt.Fprintf(&b, "%d. %s", i+1, c.Source)
		switch len(c.Pages) {
		case 0:
		case 1:
			fmt.Fprintf(&b, " (Page %d)", c.Pages[0])
		default:
			fmt.Fprintf(&b, " (Pages %s)", strings.Join(pie.Map(c.Pages, strconv.Itoa), ", "))
		}
		if c.URL != "" {
			fmt.Fprintf(&b, "\n   URL: %s", c.URL)
		}
		b.WriteString("\n")
	}
	return b.String()
}
