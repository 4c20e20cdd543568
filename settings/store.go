package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"mtu/mcu"
)

// FileName is the settings file name inside the configuration directory.
const FileName = "mtu_settings.json"

// ConfigDir returns MTU_CONFIG_DIR if set, else the per-user config dir.
func ConfigDir() (string, error) {
	if dir := os.Getenv("MTU_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mtu"), nil
}

// Store guards the tool settings and their JSON file.
type Store struct {
	path string
	log  *zap.Logger

	mu   sync.RWMutex
	tool Tool
}

// NewStore creates a store backed by path holding the defaults. Call Load to
// read the file.
func NewStore(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log, tool: Defaults()}
}

// OpenDefault creates a store in ConfigDir and loads it.
func OpenDefault(log *zap.Logger) (*Store, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("settings: could not find configuration directory: %w", err)
	}
	s := NewStore(filepath.Join(dir, FileName), log)
	if err = s.Load(); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Load replaces the settings with the file contents. A missing file keeps
// the defaults and is not an error.
func (s *Store) Load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("settings: load: no settings file yet", zap.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}

	t, err := decode(b)
	if err != nil {
		return fmt.Errorf("settings: load %s: %w", s.path, err)
	}
	if err = t.Validate(); err != nil {
		s.log.Warn("settings: load: keeping defaults", zap.String("path", s.path), zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.tool = t
	s.mu.Unlock()
	s.log.Info("settings: loaded", zap.String("path", s.path))
	return nil
}

// Save writes the settings file, creating its directory as needed.
func (s *Store) Save() error {
	s.mu.RLock()
	b, err := json.MarshalIndent(&s.tool, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}

	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	if err = os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("settings: save: %w", err)
	}

	s.log.Info("settings: saved", zap.String("path", s.path))
	return nil
}

// Get returns a copy of the current settings.
func (s *Store) Get() Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tool.clone()
}

// Update applies fn to a copy of the settings and stores the result only if
// fn and validation both succeed.
func (s *Store) Update(fn func(t *Tool) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tool.clone()
	if err := fn(&t); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	s.tool = t
	return nil
}

// SetCPUSpeed stores the CPU clock after checking it against the target.
func (s *Store) SetCPUSpeed(tgt *mcu.Target, mhz int) error {
	if err := checkCPUSpeed(tgt, mhz); err != nil {
		return err
	}
	return s.Update(func(t *Tool) error {
		t.CPUSpeedMHz = mhz
		return nil
	})
}

// SetTarget selects a target by device identifier. The CPU clock is clamped
// to the new target's maximum and the connection selection is reset.
func (s *Store) SetTarget(device string) error {
	tgt, err := mcu.Lookup(device)
	if err != nil {
		return &ConfigValidationError{Key: "mcuDevice", Value: device, Reason: err.Error()}
	}
	return s.Update(func(t *Tool) error {
		t.MCUDevice = mcu.IndexOf(tgt.Device)
		if t.CPUSpeedMHz > tgt.MaxCPUFreqMHz || t.CPUSpeedMHz <= 0 {
			t.CPUSpeedMHz = tgt.MaxCPUFreqMHz
		}
		if tgt.Connections != nil {
			sel := tgt.Connections.DefaultSelection()
			t.Conn = &sel
		} else {
			t.Conn = nil
		}
		return nil
	})
}
