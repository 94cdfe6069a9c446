package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrEmptyLabel is returned when enrolling without a label.
	ErrEmptyLabel = errors.New("empty label")
	// ErrReservedLabel is returned when enrolling under the Unknown label.
	ErrReservedLabel = errors.New("reserved label")
)

// NormalizeLabel trims surrounding whitespace from label and rejects labels
// that cannot name an enrolled person.
func NormalizeLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", ErrEmptyLabel
	}
	if strings.EqualFold(label, Unknown) {
		return "", fmt.Errorf("%q: %w", label, ErrReservedLabel)
	}
	return label, nil
}

// Snapshot is an immutable view of a Gallery. Enrollments made after the
// snapshot was taken are not visible through it.
type Snapshot struct {
	entries []Entry
}

// Entries returns the entries of the snapshot. Callers must not modify them.
func (s Snapshot) Entries() []Entry {
	return s.entries
}

// Len returns the number of labels in the snapshot.
func (s Snapshot) Len() int {
	return len(s.entries)
}

// Match matches query against the snapshot.
func (s Snapshot) Match(query Embedding, threshold float64) (MatchResult, error) {
	return Match(query, s.entries, threshold)
}

// Gallery is the set of enrolled people. Writers copy the entry slice so that
// snapshots handed to running sessions never change underneath them.
type Gallery struct {
	mu      sync.RWMutex
	entries []Entry
	dims    int
}

// NewGallery creates a Gallery seeded with entries, keeping their order.
// Entries sharing a label are merged.
func NewGallery(entries []Entry) (*Gallery, error) {
	g := &Gallery{}
	for _, e := range entries {
		for _, emb := range e.Embeddings {
			if err := g.Enroll(e.Label, emb); err != nil {
				return nil, fmt.Errorf("seed %q: %w", e.Label, err)
			}
		}
	}
	return g, nil
}

// Snapshot returns the current contents.
func (g *Gallery) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Snapshot{entries: g.entries}
}

// Enroll adds emb to label, creating the entry if needed. All embeddings in
// a gallery must share one length.
func (g *Gallery) Enroll(label string, emb Embedding) error {
	if label == "" {
		return ErrEmptyLabel
	}
	if strings.EqualFold(label, Unknown) {
		return fmt.Errorf("%q: %w", label, ErrReservedLabel)
	}
	if len(emb) == 0 {
		return ErrEmptyEmbedding
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dims != 0 && len(emb) != g.dims {
		return fmt.Errorf("%w: gallery uses %d, got %d", ErrDimensionMismatch, g.dims, len(emb))
	}

	next := make([]Entry, len(g.entries), len(g.entries)+1)
	copy(next, g.entries)

	found := false
	for i := range next {
		if next[i].Label == label {
			embs := make([]Embedding, len(next[i].Embeddings), len(next[i].Embeddings)+1)
			copy(embs, next[i].Embeddings)
			next[i].Embeddings = append(embs, emb.Clone())
			found = true
			break
		}
	}
	if !found {
		next = append(next, Entry{Label: label, Embeddings: []Embedding{emb.Clone()}})
	}

	g.entries = next
	g.dims = len(emb)
	return nil
}

// Remove deletes label from the gallery. It reports whether it was present.
func (g *Gallery) Remove(label string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range g.entries {
		if g.entries[i].Label != label {
			continue
		}
		next := make([]Entry, 0, len(g.entries)-1)
		next = append(next, g.entries[:i]...)
		next = append(next, g.entries[i+1:]...)
		g.entries = next
		if len(next) == 0 {
			g.dims = 0
		}
		return true
	}
	return false
}

// Len returns the number of enrolled labels.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Dims returns the embedding length in use, or 0 for an empty gallery.
func (g *Gallery) Dims() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dims
}
