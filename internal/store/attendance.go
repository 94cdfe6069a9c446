package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ayusman/drishti/internal/session"
)

// Attendance is one logged verification session.
type Attendance struct {
	ID              string          `json:"id"`
	StudentID       string          `json:"student_id,omitempty"`
	Label           string          `json:"label,omitempty"`
	Outcome         session.Outcome `json:"outcome"`
	Reason          string          `json:"reason,omitempty"`
	Distance        *float64        `json:"distance"`
	Blinks          int             `json:"blinks"`
	HeadMovement    bool            `json:"head_movement"`
	SpoofConfidence float64         `json:"spoof_confidence"`
	Frames          int             `json:"frames"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

// AttendanceRepository logs session results. It implements session.Recorder.
type AttendanceRepository struct {
	db *sql.DB
}

// Attendance returns the attendance repository for this store.
func (s *Store) Attendance() *AttendanceRepository {
	return &AttendanceRepository{db: s.db}
}

var _ session.Recorder = (*AttendanceRepository)(nil)

// Record stores result. Recognized results are linked to the student with
// the matching name; a non-finite distance is stored as NULL.
func (r *AttendanceRepository) Record(ctx context.Context, result session.Result) error {
	if !result.Outcome.Valid() {
		return fmt.Errorf("record attendance: invalid outcome %q", result.Outcome)
	}

	var studentID sql.NullString
	if result.Outcome == session.OutcomeRecognized && result.Label != "" {
		var id string
		err := r.db.QueryRowContext(ctx, `SELECT id FROM students WHERE name = ?`, result.Label).Scan(&id)
		switch {
		case err == nil:
			studentID = sql.NullString{String: id, Valid: true}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
	}

	var distance sql.NullFloat64
	if !math.IsInf(result.Distance, 0) && !math.IsNaN(result.Distance) &&
		(result.Outcome == session.OutcomeRecognized || result.Outcome == session.OutcomeUnrecognized) {
		distance = sql.NullFloat64{Float64: result.Distance, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attendance (id, student_id, label, outcome, reason, distance, blinks,
			head_movement, spoof_confidence, frames, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, studentID, result.Label, string(result.Outcome), result.Reason, distance,
		result.Blinks, result.HeadMovement, result.SpoofConfidence, result.Frames,
		result.StartedAt, result.FinishedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("attendance %s: %w", result.ID, ErrDuplicate)
		}
		return err
	}
	return nil
}

// List returns up to limit records, most recent first. limit <= 0 means 50.
func (r *AttendanceRepository) List(limit int) ([]Attendance, error) {
	return r.query("", limit)
}

// ListByStudent returns a student's records, most recent first.
func (r *AttendanceRepository) ListByStudent(studentID string, limit int) ([]Attendance, error) {
	return r.query(`WHERE student_id = ?`, limit, studentID)
}

func (r *AttendanceRepository) query(where string, limit int, args ...any) ([]Attendance, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT id, student_id, label, outcome, reason, distance, blinks, head_movement,
			spoof_confidence, frames, started_at, finished_at
		 FROM attendance `+where+`
		 ORDER BY finished_at DESC, rowid DESC
		 LIMIT ?`,
		append(args, limit)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Attendance
	for rows.Next() {
		var a Attendance
		var studentID sql.NullString
		var outcome string
		var distance sql.NullFloat64
		var headMovement int

		err := rows.Scan(&a.ID, &studentID, &a.Label, &outcome, &a.Reason, &distance, &a.Blinks,
			&headMovement, &a.SpoofConfidence, &a.Frames, &a.StartedAt, &a.FinishedAt)
		if err != nil {
			return nil, err
		}

		a.StudentID = studentID.String
		a.Outcome = session.Outcome(outcome)
		a.HeadMovement = headMovement != 0
		if distance.Valid {
			d := distance.Float64
			a.Distance = &d
		}
		records = append(records, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
