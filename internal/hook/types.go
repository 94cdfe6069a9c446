// Package hook runs external programs when a verification session ends.
// Each hook lives in its own directory with a hook.json manifest naming the
// outcomes it wants to hear about.
package hook

import (
	"encoding/json"

	"github.com/ayusman/drishti/internal/session"
)

// ManifestFile is the manifest file name inside a hook directory.
const ManifestFile = "hook.json"

// EventSessionFinished is the only event sent to hooks today.
const EventSessionFinished = "session.finished"

// Manifest describes a hook's metadata and subscriptions.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	// Outcomes lists the outcomes the hook is run for. Empty means all.
	Outcomes []session.Outcome `json:"outcomes"`
	Config   json.RawMessage   `json:"config,omitempty"`
}

// Request is written to a hook's stdin as JSON.
type Request struct {
	Event  string          `json:"event"`
	Result session.Result  `json:"result"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is read from a hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Subscribes reports whether the hook wants results with outcome o.
func (h *Hook) Subscribes(o session.Outcome) bool {
	if len(h.Manifest.Outcomes) == 0 {
		return true
	}
	for _, want := range h.Manifest.Outcomes {
		if want == o {
			return true
		}
	}
	return false
}
