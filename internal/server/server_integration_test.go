package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/store"
)

func TestAPI_StudentWorkflow(t *testing.T) {
	// Setup
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	kiosk, err := app.New(app.Config{
		Store:    s,
		Camera:   capture.NewPlaybackCamera(nil, false),
		Detector: detector.NewMockDetector(),
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	srv := New(Config{Store: s, Kiosk: kiosk})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Create a student
	resp, err := client.Post(ts.URL+"/api/students", "application/json", bytes.NewBufferString(`{"name": "asha"}`))
	if err != nil {
		t.Fatalf("POST /api/students error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Name != "asha" {
		t.Errorf("created name = %s, want asha", created.Name)
	}
	if kiosk.Gallery().Len() != 0 {
		t.Fatalf("gallery len = %d before any embedding, want 0", kiosk.Gallery().Len())
	}

	// 2. Enroll an embedding; the live gallery picks it up
	resp, err = client.Post(ts.URL+"/api/students/"+created.ID+"/embeddings", "application/json",
		bytes.NewBufferString(`{"embedding": [0.6, 0.8, 0]}`))
	if err != nil {
		t.Fatalf("POST embeddings error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST embeddings status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	resp.Body.Close()

	if kiosk.Gallery().Len() != 1 {
		t.Fatalf("gallery len = %d after enroll, want 1", kiosk.Gallery().Len())
	}
	match, err := kiosk.Gallery().Snapshot().Match([]float64{0.6, 0.8, 0}, 0.6)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if match.Label != "asha" {
		t.Errorf("match label = %q, want asha", match.Label)
	}

	// 3. Mismatched dimensions are rejected
	resp, _ = client.Post(ts.URL+"/api/students/"+created.ID+"/embeddings", "application/json",
		bytes.NewBufferString(`{"embedding": [1, 0]}`))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("POST mismatched embedding status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
	resp.Body.Close()

	// 4. List students
	resp, _ = client.Get(ts.URL + "/api/students")
	var listed struct {
		Students []struct {
			ID         string `json:"id"`
			Embeddings int    `json:"embeddings"`
		} `json:"students"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Students) != 1 || listed.Students[0].Embeddings != 1 {
		t.Fatalf("listed students = %+v, want one with one embedding", listed.Students)
	}

	// 5. Delete removes the student from the gallery too
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/students/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	if kiosk.Gallery().Len() != 0 {
		t.Errorf("gallery len = %d after delete, want 0", kiosk.Gallery().Len())
	}

	// 6. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/students/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_StoreOnlyEnroll(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	ts := httptest.NewServer(New(Config{Store: s}))
	defer ts.Close()

	st := &store.Student{Name: "bela"}
	if err := s.Students().Create(st); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	resp, err := ts.Client().Post(ts.URL+"/api/students/"+st.ID+"/embeddings", "application/json",
		bytes.NewBufferString(`{"embedding": [1, 0, 0]}`))
	if err != nil {
		t.Fatalf("POST embeddings error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	entries, err := s.LoadGallery()
	if err != nil {
		t.Fatalf("LoadGallery() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Label != "bela" {
		t.Errorf("gallery = %+v, want bela", entries)
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
