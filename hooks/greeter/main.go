// Package main provides a hook that greets people by voice when a session
// ends. It uses say(1) on macOS and espeak on other platforms.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request is the input from the hook executor. Only the fields the greeter
// needs are decoded.
type Request struct {
	Event  string `json:"event"`
	Result struct {
		Outcome string `json:"outcome"`
		Label   string `json:"label"`
	} `json:"result"`
	Config json.RawMessage `json:"config"`
}

// Response is the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is read from the manifest's config block. Messages may contain %s,
// which is replaced by the student's name.
type Config struct {
	Voice    string            `json:"voice"`
	Messages map[string]string `json:"messages"`
	// DryRun reports the message without speaking it.
	DryRun bool `json:"dry_run"`
}

var defaultMessages = map[string]string{
	"recognized":      "Welcome, %s",
	"unrecognized":    "Sorry, I don't recognise you",
	"spoof_rejected":  "Please step up to the camera in person",
	"liveness_failed": "Please look at the camera and blink",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}
	if os.Getenv("GREETER_DRY_RUN") != "" {
		cfg.DryRun = true
	}

	text := message(cfg, req.Result.Outcome, req.Result.Label)
	if text == "" {
		writeSuccessResponse("")
		return
	}

	if !cfg.DryRun {
		if err := speak(text, cfg.Voice); err != nil {
			writeErrorResponse(fmt.Sprintf("speak failed: %v", err))
			return
		}
	}
	writeSuccessResponse(text)
}

// message picks the phrase for an outcome. An empty configured message
// silences that outcome.
func message(cfg Config, outcome, label string) string {
	msg, ok := cfg.Messages[outcome]
	if !ok {
		msg = defaultMessages[outcome]
	}
	if strings.Contains(msg, "%s") {
		if label == "" {
			label = "friend"
		}
		msg = fmt.Sprintf(msg, label)
	}
	return msg
}

// speak says text aloud with the platform's speech synthesizer.
func speak(text, voice string) error {
	var name string
	switch runtime.GOOS {
	case "darwin":
		name = "say"
	default:
		name = "espeak"
	}

	var args []string
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, text)

	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

func writeSuccessResponse(spoken string) {
	resp := Response{Success: true}
	if spoken != "" {
		resp.Data, _ = json.Marshal(map[string]string{"spoken": spoken})
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
