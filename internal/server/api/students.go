package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/store"
)

// StudentHandler handles /api/students and its sub-resources.
type StudentHandler struct {
	store  *store.Store
	roster Roster
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(s *store.Store, roster Roster) *StudentHandler {
	return &StudentHandler{store: s, roster: roster}
}

// ServeHTTP routes:
//
//	GET, POST   /api/students
//	GET, DELETE /api/students/{id}
//	GET, POST   /api/students/{id}/embeddings
func (h *StudentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/students")

	switch {
	case len(parts) == 0:
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, parts[0])
		case http.MethodDelete:
			h.delete(w, r, parts[0])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case len(parts) == 2 && parts[1] == "embeddings":
		switch r.Method {
		case http.MethodGet:
			h.listEmbeddings(w, r, parts[0])
		case http.MethodPost:
			h.addEmbedding(w, r, parts[0])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	default:
		http.NotFound(w, r)
	}
}

type createStudentRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type addEmbeddingRequest struct {
	Embedding []float64 `json:"embedding" validate:"required,min=1,max=4096"`
}

type studentResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Embeddings int    `json:"embeddings"`
	CreatedAt  string `json:"created_at"`
}

type listStudentsResponse struct {
	Students []studentResponse `json:"students"`
}

type embeddingResponse struct {
	ID        int64     `json:"id"`
	Dims      int       `json:"dims"`
	Vector    []float64 `json:"vector"`
	CreatedAt string    `json:"created_at"`
}

type listEmbeddingsResponse struct {
	Embeddings []embeddingResponse `json:"embeddings"`
}

func toStudentResponse(st *store.Student) studentResponse {
	return studentResponse{
		ID:         st.ID,
		Name:       st.Name,
		Embeddings: st.Embeddings,
		CreatedAt:  st.CreatedAt.Format(time.RFC3339),
	}
}

// list handles GET /api/students.
func (h *StudentHandler) list(w http.ResponseWriter, r *http.Request) {
	students, err := h.store.Students().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students")
		return
	}

	response := listStudentsResponse{Students: make([]studentResponse, 0, len(students))}
	for _, st := range students {
		response.Students = append(response.Students, toStudentResponse(st))
	}
	writeJSON(w, http.StatusOK, response)
}

// create handles POST /api/students. The student has no embeddings until
// one is posted to /api/students/{id}/embeddings.
func (h *StudentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := &store.Student{Name: req.Name}
	if err := h.store.Students().Create(st); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			writeError(w, http.StatusConflict, "Student already exists")
			return
		case errors.Is(err, identity.ErrEmptyLabel), errors.Is(err, identity.ErrReservedLabel):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create student")
		return
	}

	writeJSON(w, http.StatusCreated, toStudentResponse(st))
}

// get handles GET /api/students/{id}.
func (h *StudentHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	st, err := h.store.Students().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Student not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get student")
		return
	}
	writeJSON(w, http.StatusOK, toStudentResponse(st))
}

// delete handles DELETE /api/students/{id}.
func (h *StudentHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.roster.RemoveStudent(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Student not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete student")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listEmbeddings handles GET /api/students/{id}/embeddings.
func (h *StudentHandler) listEmbeddings(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Students().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Student not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get student")
		return
	}

	embs, err := h.store.Embeddings().ListByStudent(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list embeddings")
		return
	}

	response := listEmbeddingsResponse{Embeddings: make([]embeddingResponse, 0, len(embs))}
	for _, e := range embs {
		response.Embeddings = append(response.Embeddings, embeddingResponse{
			ID:        e.ID,
			Dims:      len(e.Vector),
			Vector:    e.Vector,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// addEmbedding handles POST /api/students/{id}/embeddings and enrolls the
// vector into the live gallery.
func (h *StudentHandler) addEmbedding(w http.ResponseWriter, r *http.Request, id string) {
	st, err := h.store.Students().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Student not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get student")
		return
	}

	var req addEmbeddingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.roster.Enroll(st.Name, identity.Embedding(req.Embedding))
	if err != nil {
		if errors.Is(err, identity.ErrDimensionMismatch) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to enroll embedding")
		return
	}

	writeJSON(w, http.StatusCreated, toStudentResponse(updated))
}
