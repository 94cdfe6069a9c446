package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/drishti/internal/store"
)

// AttendanceHandler handles GET /api/attendance.
type AttendanceHandler struct {
	store *store.Store
}

// NewAttendanceHandler creates a new AttendanceHandler.
func NewAttendanceHandler(s *store.Store) *AttendanceHandler {
	return &AttendanceHandler{store: s}
}

type listAttendanceResponse struct {
	Attendance []store.Attendance `json:"attendance"`
}

// ServeHTTP lists recent sessions. Query parameters: limit (default 50,
// max 500) and student_id.
func (h *AttendanceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}

	var (
		records []store.Attendance
		err     error
	)
	if studentID := r.URL.Query().Get("student_id"); studentID != "" {
		records, err = h.store.Attendance().ListByStudent(studentID, limit)
	} else {
		records, err = h.store.Attendance().List(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attendance")
		return
	}

	if records == nil {
		records = []store.Attendance{}
	}
	writeJSON(w, http.StatusOK, listAttendanceResponse{Attendance: records})
}
