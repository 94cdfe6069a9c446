package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/drishti/internal/identity"
)

// Student is an enrolled person. Name doubles as the gallery label.
type Student struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Embeddings int       `json:"embeddings"`
	CreatedAt  time.Time `json:"created_at"`
}

// StudentRepository provides CRUD operations for students.
type StudentRepository struct {
	db *sql.DB
}

// Students returns the student repository for this store.
func (s *Store) Students() *StudentRepository {
	return &StudentRepository{db: s.db}
}

// Create inserts a new student. An empty ID is filled with a fresh UUID.
func (r *StudentRepository) Create(st *Student) error {
	return createStudent(r.db, st)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func createStudent(db execer, st *Student) error {
	name, err := identity.NormalizeLabel(st.Name)
	if err != nil {
		return err
	}
	st.Name = name

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.CreatedAt = time.Now()

	_, err = db.Exec(
		`INSERT INTO students (id, name, created_at) VALUES (?, ?, ?)`,
		st.ID, st.Name, st.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("student %q: %w", st.Name, ErrDuplicate)
		}
		return err
	}
	return nil
}

const studentColumns = `s.id, s.name, s.created_at,
	(SELECT COUNT(*) FROM face_embeddings e WHERE e.student_id = s.id)`

// GetByID retrieves a student by its ID.
func (r *StudentRepository) GetByID(id string) (*Student, error) {
	return r.getOne(`SELECT `+studentColumns+` FROM students s WHERE s.id = ?`, id)
}

// GetByName retrieves a student by name.
func (r *StudentRepository) GetByName(name string) (*Student, error) {
	return r.getOne(`SELECT `+studentColumns+` FROM students s WHERE s.name = ?`, name)
}

func (r *StudentRepository) getOne(query string, arg string) (*Student, error) {
	st := &Student{}
	err := r.db.QueryRow(query, arg).Scan(&st.ID, &st.Name, &st.CreatedAt, &st.Embeddings)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return st, nil
}

// List retrieves all students ordered by name.
func (r *StudentRepository) List() ([]*Student, error) {
	rows, err := r.db.Query(`SELECT ` + studentColumns + ` FROM students s ORDER BY s.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []*Student
	for rows.Next() {
		st := &Student{}
		if err := rows.Scan(&st.ID, &st.Name, &st.CreatedAt, &st.Embeddings); err != nil {
			return nil, err
		}
		students = append(students, st)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return students, nil
}

// Delete removes a student and, by cascade, their embeddings. Attendance
// rows keep their label but lose the student reference.
func (r *StudentRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM students WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
