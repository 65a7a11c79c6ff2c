// Package retrieval finds the document chunks most similar to a question.
//
// Results come back as a ResultSet: parallel slices of chunk text, source
// metadata and distances, ordered from most to least similar (ascending
// distance). Smaller distances mean closer matches.
package retrieval

import (
	"context"
	"errors"
	"fmt"
)

// DefaultTopK is the number of chunks requested per question.
const DefaultTopK = 3

// ErrUnavailable is returned when no index or embedder is configured.
var ErrUnavailable = errors.New("retrieval: index not available")

// Source describes where a chunk came from. Page 0 means "no page".
type Source struct {
	Name string `json:"source"`
	Page int    `json:"page,omitempty"`
	URL  string `json:"url,omitempty"`
}

// ResultSet holds ranked retrieval results. Chunks[i], Sources[i] and
// Distances[i] describe the same item.
type ResultSet struct {
	Chunks    []string
	Sources   []Source
	Distances []float64
}

// Len returns the number of items.
func (r ResultSet) Len() int { return len(r.Chunks) }

// Validate checks that the parallel slices line up and that distances are
// ascending.
func (r ResultSet) Validate() error {
	if len(r.Sources) != len(r.Chunks) || len(r.Distances) != len(r.Chunks) {
		return fmt.Errorf("retrieval: mismatched result set: %d chunks, %d sources, %d distances",
			len(r.Chunks), len(r.Sources), len(r.Distances))
	}
	for i := 1; i < len(r.Distances); i++ {
		if r.Distances[i] < r.Distances[i-1] {
			return fmt.Errorf("retrieval: distances not ascending at %d", i)
		}
	}
	return nil
}

// Retriever answers similarity queries.
type Retriever interface {
	Query(ctx context.Context, text string, topK int) (ResultSet, error)
	Available() bool
}

// Unavailable is the Retriever used when retrieval is not configured.
type Unavailable struct{}

func (Unavailable) Query(context.Context, string, int) (ResultSet, error) {
	return ResultSet{}, ErrUnavailable
}
func (Unavailable) Available() bool { return false }

var _ Retriever = Unavailable{}
