package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/session"
)

// ErrHookNotFound is returned when a requested hook cannot be found.
var ErrHookNotFound = errors.New("hook not found")

// Manager discovers hooks in a directory and looks them up.
type Manager struct {
	dir   string
	hooks map[string]*Hook
	mu    sync.RWMutex
}

// NewManager creates a Manager for dir.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:   dir,
		hooks: make(map[string]*Hook),
	}
}

// Discover rescans the hook directory. Each subdirectory holding a valid
// hook.json becomes a hook; unreadable or invalid manifests are skipped.
// A missing directory yields no hooks.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = make(map[string]*Hook)

	info, err := os.Stat(m.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("hook dir %s is not a directory", m.dir)
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return err
	}

	log := logging.L()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		hookPath := filepath.Join(m.dir, entry.Name())
		hook, err := loadHook(hookPath)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn("skipping hook", zap.String("path", hookPath), zap.Error(err))
			}
			continue
		}

		m.hooks[hook.Manifest.Name] = hook
	}

	log.Info("hooks discovered", zap.String("dir", m.dir), zap.Int("count", len(m.hooks)))
	return nil
}

func loadHook(hookPath string) (*Hook, error) {
	data, err := os.ReadFile(filepath.Join(hookPath, ManifestFile))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Name == "" {
		manifest.Name = filepath.Base(hookPath)
	}
	if manifest.Executable == "" {
		return nil, fmt.Errorf("manifest %s: missing executable", manifest.Name)
	}
	for _, o := range manifest.Outcomes {
		if !o.Valid() {
			return nil, fmt.Errorf("manifest %s: unknown outcome %q", manifest.Name, o)
		}
	}

	return &Hook{
		Manifest:   manifest,
		Path:       hookPath,
		Executable: filepath.Join(hookPath, manifest.Executable),
	}, nil
}

// Get returns a hook by name.
func (m *Manager) Get(name string) (*Hook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hook, ok := m.hooks[name]
	if !ok {
		return nil, ErrHookNotFound
	}
	return hook, nil
}

// List returns all discovered hooks sorted by name.
func (m *Manager) List() []*Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hooks := make([]*Hook, 0, len(m.hooks))
	for _, hook := range m.hooks {
		hooks = append(hooks, hook)
	}
	sort.Slice(hooks, func(i, j int) bool {
		return hooks[i].Manifest.Name < hooks[j].Manifest.Name
	})
	return hooks
}

// ForOutcome returns the hooks subscribed to o, sorted by name.
func (m *Manager) ForOutcome(o session.Outcome) []*Hook {
	var out []*Hook
	for _, hook := range m.List() {
		if hook.Subscribes(o) {
			out = append(out, hook)
		}
	}
	return out
}

// Dir returns the hook directory path.
func (m *Manager) Dir() string {
	return m.dir
}
