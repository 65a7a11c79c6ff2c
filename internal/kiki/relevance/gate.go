// Package relevance decides whether retrieved chunks are close enough to a
// question to ground an answer in them.
//
// The decision has two separate steps. Admit looks only at the best match:
// if even that is farther than the threshold, the whole result set is
// rejected. Filter then drops every individual item farther than the same
// threshold. A set can therefore be admitted and still lose most of its items.
package relevance

import (
	"github.com/bdobrica/Kiki/internal/kiki/retrieval"
)

const (
	// DefaultPrimaryThreshold is the strict first-pass distance cutoff.
	DefaultPrimaryThreshold = 1.2
	// DefaultFallbackThreshold is the looser second-pass cutoff.
	DefaultFallbackThreshold = 1.5
)

// Decision is the outcome of evaluating a result set.
type Decision struct {
	Relevant  bool
	Chunks    []string
	Sources   []retrieval.Source
	Distances []float64
}

// Usable reports whether the decision is relevant and still has items.
func (d Decision) Usable() bool { return d.Relevant && len(d.Chunks) > 0 }

// Admit reports whether the best (first) result is within threshold. An
// empty set is never admitted.
func Admit(rs retrieval.ResultSet, threshold float64) bool {
	if len(rs.Distances) == 0 {
		return false
	}
	return rs.Distances[0] <= threshold
}

// Filter keeps the items whose own distance is within threshold, in order.
func Filter(rs retrieval.ResultSet, threshold float64) retrieval.ResultSet {
	var out retrieval.ResultSet
	for i, d := range rs.Distances {
		if d > threshold {
			continue
		}
		out.Chunks = append(out.Chunks, rs.Chunks[i])
		out.Sources = append(out.Sources, rs.Sources[i])
		out.Distances = append(out.Distances, d)
	}
	return out
}

// Evaluate applies Admit and Filter at threshold. A nil threshold means no
// gating: any non-empty set is relevant and kept whole.
func Evaluate(rs retrieval.ResultSet, threshold *float64) Decision {
	if threshold == nil {
		return Decision{
			Relevant:  rs.Len() > 0,
			Chunks:    rs.Chunks,
			Sources:   rs.Sources,
			Distances: rs.Distances,
		}
	}
	if !Admit(rs, *threshold) {
		return Decision{}
	}
	kept := Filter(rs, *threshold)
	return Decision{
		Relevant:  true,
		Chunks:    kept.Chunks,
		Sources:   kept.Sources,
		Distances: kept.Distances,
	}
}

// Threshold returns a pointer to v, for building optional thresholds.
func Threshold(v float64) *float64 { return &v }
