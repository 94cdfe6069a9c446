package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ayusman/drishti/internal/identity"
)

// StoredEmbedding is one enrolled face vector.
type StoredEmbedding struct {
	ID        int64              `json:"id"`
	StudentID string             `json:"student_id"`
	Vector    identity.Embedding `json:"vector"`
	CreatedAt time.Time          `json:"created_at"`
}

// EmbeddingRepository stores face embeddings per student.
type EmbeddingRepository struct {
	db *sql.DB
}

// Embeddings returns the embedding repository for this store.
func (s *Store) Embeddings() *EmbeddingRepository {
	return &EmbeddingRepository{db: s.db}
}

// Add stores emb for studentID.
func (r *EmbeddingRepository) Add(studentID string, emb identity.Embedding) (*StoredEmbedding, error) {
	return addEmbedding(r.db, studentID, emb)
}

func addEmbedding(db execer, studentID string, emb identity.Embedding) (*StoredEmbedding, error) {
	if len(emb) == 0 {
		return nil, identity.ErrEmptyEmbedding
	}

	data, err := json.Marshal([]float64(emb))
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}

	stored := &StoredEmbedding{
		StudentID: studentID,
		Vector:    emb.Clone(),
		CreatedAt: time.Now(),
	}

	result, err := db.Exec(
		`INSERT INTO face_embeddings (student_id, dims, vector, created_at) VALUES (?, ?, ?, ?)`,
		studentID, len(emb), string(data), stored.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	stored.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ListByStudent returns a student's embeddings in insertion order.
func (r *EmbeddingRepository) ListByStudent(studentID string) ([]StoredEmbedding, error) {
	rows, err := r.db.Query(
		`SELECT id, student_id, vector, created_at
		 FROM face_embeddings
		 WHERE student_id = ?
		 ORDER BY id`,
		studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEmbedding
	for rows.Next() {
		var e StoredEmbedding
		var data string
		if err := rows.Scan(&e.ID, &e.StudentID, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &e.Vector); err != nil {
			return nil, fmt.Errorf("decode embedding %d: %w", e.ID, err)
		}
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// DeleteByStudent removes all embeddings of a student.
func (r *EmbeddingRepository) DeleteByStudent(studentID string) error {
	_, err := r.db.Exec(`DELETE FROM face_embeddings WHERE student_id = ?`, studentID)
	return err
}
