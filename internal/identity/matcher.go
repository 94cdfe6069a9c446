package identity

import "math"

// DefaultThreshold is the largest distance still accepted as the same person.
const DefaultThreshold = 0.6

// Unknown is the label reported when no gallery entry is close enough.
const Unknown = "unknown"

// Entry is one enrolled person. A person may own several embeddings, for
// example after re-registration.
type Entry struct {
	Label      string      `json:"label"`
	Embeddings []Embedding `json:"embeddings"`
}

// MatchResult is the best gallery match for a query.
type MatchResult struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
	Matched  bool    `json:"matched"`
}

// Known reports whether the result names an enrolled person.
func (r MatchResult) Known() bool {
	return r.Matched
}

// Match finds the entry nearest to query. An entry's distance is the
// minimum over all its embeddings. Ties go to the entry that comes first in
// entries. If the best distance exceeds threshold the result is Unknown
// with that distance; an empty gallery yields Unknown at +Inf.
func Match(query Embedding, entries []Entry, threshold float64) (MatchResult, error) {
	best := MatchResult{Label: Unknown, Distance: math.Inf(1)}
	bestIdx := -1

	for i, entry := range entries {
		for _, emb := range entry.Embeddings {
			d, err := Distance(query, emb)
			if err != nil {
				return MatchResult{}, err
			}
			// Strict comparison keeps the earliest entry on ties.
			if d < best.Distance {
				best.Distance = d
				bestIdx = i
			}
		}
	}

	if bestIdx >= 0 && best.Distance <= threshold {
		best.Label = entries[bestIdx].Label
		best.Matched = true
	}
	return best, nil
}
