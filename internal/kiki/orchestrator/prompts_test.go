package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdobrica/Kiki/internal/kiki/retrieval"
)

func TestBuildContext(t *testing.T) {
	got := buildContext(
		[]string{"first", "second"},
		[]retrieval.Source{{Name: "a.pdf", Page: 4}, {Name: ""}},
	)
	assert.Equal(t, "[Source 1: a.pdf, Page 4]\nfirst\n\n[Source 2: Unknown]\nsecond\n\n", got)
}

func TestTruncateHead(t *testing.T) {
	assert.Equal(t, "short", truncateHead("short", 10))
	assert.Equal(t, "abc...", truncateHead("abcdef", 3))
	assert.Equal(t, "ɛɛ...", truncateHead("ɛɛɛɛ", 2), "cuts on rune boundaries")
}

func TestTruncateTail(t *testing.T) {
	assert.Equal(t, "def", truncateTail("abcdef", 3))
	assert.Equal(t, "abc", truncateTail("abc", 3))
}

func TestRagPromptWithoutHistory(t *testing.T) {
	p := ragPrompt("Kiki", "Q?", "CTX", "")
	assert.True(t, strings.HasPrefix(p, "You are Kiki, a helpful AI assistant."))
	assert.Contains(t, p, "Context:\nCTX\n\nQuestion: Q?\n\n")
}

func TestFormatCitations(t *testing.T) {
	cs := collectCitations([]retrieval.Source{
		{Name: "ghana.pdf", Page: 12},
		{Name: "web", URL: "https://example.org/ghana"},
		{Name: "ghana.pdf", Page: 3},
		{Name: "ghana.pdf", Page: 12},
		{Name: "atlas.pdf", Page: 7},
	})
	assert.Equal(t, "\n\nSources:\n"+
		"1. ghana.pdf (Pages 3, 12)\n"+
		"2. web\n   URL: https://example.org/ghana\n"+
		"3. atlas.pdf (Page 7)\n", formatCitations(cs))
}

func TestFormatCitationsEmpty(t *testing.T) {
	assert.Empty(t, formatCitations(nil))
}
