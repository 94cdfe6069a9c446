package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/drishti/internal/logging"
)

// ErrScriptNotFound is returned when a helper script cannot be located.
var ErrScriptNotFound = errors.New("helper script not found")

// service runs a Python helper that reads length-prefixed JPEG frames on
// stdin and answers each with one JSON line on stdout. The process is
// started lazily and stopped after an idle period.
type service struct {
	config     Config
	scriptPath string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	idleTimer *time.Timer
}

func newService(config Config) (*service, error) {
	scriptPath := findScript(config.Script)
	if scriptPath == "" {
		return nil, fmt.Errorf("%s: %w", config.Script, ErrScriptNotFound)
	}
	return &service{config: config, scriptPath: scriptPath}, nil
}

// roundTrip sends one JPEG payload and returns the raw response line. A
// helper that does not answer before ctx ends or RequestTimeout passes is
// killed, and the next call starts a fresh one.
func (s *service) roundTrip(ctx context.Context, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}

	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}
	proc := s.cmd.Process
	stopWatchdog := context.AfterFunc(ctx, func() {
		_ = proc.Kill()
	})

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := s.stdin.Write(length); err != nil {
		stopWatchdog()
		return nil, s.fail(ctx, "write length", err)
	}
	if _, err := s.stdin.Write(data); err != nil {
		stopWatchdog()
		return nil, s.fail(ctx, "write data", err)
	}

	line, err := s.stdout.ReadBytes('\n')
	if !stopWatchdog() {
		// The watchdog already fired; the process is gone even if a line
		// made it through.
		return nil, s.fail(ctx, "read response", err)
	}
	if err != nil {
		return nil, s.fail(ctx, "read response", err)
	}

	s.resetIdleTimer()
	return line, nil
}

// fail tears down the helper after a broken request. A request cut off by
// ctx reports the context error.
func (s *service) fail(ctx context.Context, op string, err error) error {
	s.abort()
	if ctxErr := ctx.Err(); ctxErr != nil {
		logging.L().Warn("helper did not answer",
			zap.String("script", s.scriptPath),
			zap.Duration("timeout", s.config.RequestTimeout),
			zap.Error(ctxErr))
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *service) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown()
}

func (s *service) ensureStarted() error {
	if s.started {
		return nil
	}

	pythonPath := s.config.Python
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	cmd := exec.Command(pythonPath, s.scriptPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", filepath.Base(s.scriptPath), err)
	}

	logging.L().Info("helper started",
		zap.String("script", s.scriptPath),
		zap.Int("pid", cmd.Process.Pid))

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	s.started = true
	return nil
}

// abort kills a helper whose pipe broke so the next call starts a fresh one.
func (s *service) abort() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.shutdown()
}

func (s *service) shutdown() error {
	if !s.started {
		return nil
	}

	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if s.stdin != nil {
		s.stdin.Close()
	}

	err := s.cmd.Wait()
	s.started = false
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil

	logging.L().Info("helper stopped", zap.String("script", s.scriptPath))
	return err
}

func (s *service) resetIdleTimer() {
	timeout := s.config.IdleTimeout
	if timeout <= 0 {
		return
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.shutdown(); err != nil {
			logging.L().Debug("helper exit", zap.Error(err))
		}
	})
}

// findScript resolves name against the working directory, the executable's
// directory and ~/.drishti/scripts. A name containing a path separator is
// checked as given first.
func findScript(name string) string {
	if name == "" {
		return ""
	}

	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		name,
		filepath.Join("scripts", name),
		filepath.Join("..", "scripts", name),
		filepath.Join(execDir, "scripts", name),
		filepath.Join(os.Getenv("HOME"), ".drishti", "scripts", name),
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".drishti/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
