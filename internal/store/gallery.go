package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/drishti/internal/identity"
)

// LoadGallery returns one entry per student, in enrollment order, holding
// all of the student's embeddings. Students without embeddings are omitted.
func (s *Store) LoadGallery() ([]identity.Entry, error) {
	rows, err := s.db.Query(
		`SELECT s.name, e.vector
		 FROM students s
		 JOIN face_embeddings e ON e.student_id = s.id
		 ORDER BY s.rowid, e.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []identity.Entry
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, err
		}
		var emb identity.Embedding
		if err := json.Unmarshal([]byte(data), &emb); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", name, err)
		}

		if n := len(entries); n > 0 && entries[n-1].Label == name {
			entries[n-1].Embeddings = append(entries[n-1].Embeddings, emb)
			continue
		}
		entries = append(entries, identity.Entry{Label: name, Embeddings: []identity.Embedding{emb}})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Enroll stores emb under the student named label, creating the student if
// needed. All embeddings in the store share one dimensionality.
func (s *Store) Enroll(label string, emb identity.Embedding) (*Student, error) {
	label, err := identity.NormalizeLabel(label)
	if err != nil {
		return nil, err
	}
	if len(emb) == 0 {
		return nil, identity.ErrEmptyEmbedding
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var dims int
	err = tx.QueryRow(`SELECT dims FROM face_embeddings LIMIT 1`).Scan(&dims)
	switch {
	case err == nil:
		if dims != len(emb) {
			return nil, fmt.Errorf("%w: got %d, want %d", identity.ErrDimensionMismatch, len(emb), dims)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	st := &Student{}
	err = tx.QueryRow(`SELECT id, name, created_at FROM students WHERE name = ?`, label).
		Scan(&st.ID, &st.Name, &st.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		st.Name = label
		if err := createStudent(tx, st); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if _, err := addEmbedding(tx, st.ID, emb); err != nil {
		return nil, err
	}

	if err := tx.QueryRow(`SELECT COUNT(*) FROM face_embeddings WHERE student_id = ?`, st.ID).Scan(&st.Embeddings); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st, nil
}
