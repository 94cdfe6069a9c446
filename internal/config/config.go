// Package config loads drishti settings from a YAML file, a .env file and
// DRISHTI_* environment variables, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/liveness"
	"github.com/ayusman/drishti/internal/logging"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Motion    MotionConfig    `yaml:"motion"`
	Detector  ServiceConfig   `yaml:"detector"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Liveness  liveness.Params `yaml:"liveness"`
	Matching  MatchingConfig  `yaml:"matching"`
	Session   SessionConfig   `yaml:"session"`
	Store     StoreConfig     `yaml:"store"`
	Hooks     HooksConfig     `yaml:"hooks"`
	Log       logging.Config  `yaml:"log"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr" validate:"required"`
	StaticDir string `yaml:"static_dir"`
}

type CameraConfig struct {
	DeviceID int `yaml:"device_id" validate:"gte=0"`
	FPS      int `yaml:"fps" validate:"gte=1,lte=120"`
	Width    int `yaml:"width" validate:"gte=1"`
	Height   int `yaml:"height" validate:"gte=1"`
}

type MotionConfig struct {
	// Threshold is the percentage of changed pixels that wakes the kiosk.
	Threshold float64 `yaml:"threshold" validate:"gt=0,lte=100"`
	// IdleFPS is the polling rate while waiting for motion.
	IdleFPS int `yaml:"idle_fps" validate:"gte=1"`
}

// ServiceConfig locates a Python helper script speaking the frame protocol.
type ServiceConfig struct {
	Script string `yaml:"script"`
	Python string `yaml:"python"`
	// IdleTimeout shuts the helper down after this long without requests.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// RequestTimeout kills a helper that takes longer to answer one frame.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
}

type ExtractorConfig struct {
	ServiceConfig `yaml:",inline"`
	Dims          int `yaml:"dims" validate:"gte=1"`
}

type MatchingConfig struct {
	Threshold float64 `yaml:"threshold" validate:"gte=0"`
}

type SessionConfig struct {
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
	Cooldown time.Duration `yaml:"cooldown" validate:"gte=0"`
}

type StoreConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type HooksConfig struct {
	Dir       string `yaml:"dir"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"gte=1"`
}

// DataDir returns ~/.drishti, the default location for the database, hooks
// and helper scripts.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".drishti"
	}
	return filepath.Join(home, ".drishti")
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := DataDir()
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Camera: CameraConfig{FPS: 30, Width: 640, Height: 480},
		Motion: MotionConfig{Threshold: 1.0, IdleFPS: 5},
		Detector: ServiceConfig{
			Script:         "face_landmarks_service.py",
			IdleTimeout:    30 * time.Second,
			RequestTimeout: 5 * time.Second,
		},
		Extractor: ExtractorConfig{
			ServiceConfig: ServiceConfig{
				Script:         "face_embedding_service.py",
				IdleTimeout:    30 * time.Second,
				RequestTimeout: 10 * time.Second,
			},
			Dims: identity.DefaultDims,
		},
		Liveness: liveness.DefaultParams(),
		Matching: MatchingConfig{Threshold: identity.DefaultThreshold},
		Session:  SessionConfig{Timeout: 15 * time.Second, Cooldown: 3 * time.Second},
		Store:    StoreConfig{Path: filepath.Join(dataDir, "drishti.db")},
		Hooks:    HooksConfig{Dir: filepath.Join(dataDir, "hooks"), TimeoutMs: 5000},
		Log:      logging.Config{Level: "info"},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DRISHTI_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DRISHTI_STATIC_DIR"); v != "" {
		cfg.Server.StaticDir = v
	}
	if v := os.Getenv("DRISHTI_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DRISHTI_HOOK_DIR"); v != "" {
		cfg.Hooks.Dir = v
	}
	if v := os.Getenv("DRISHTI_PYTHON"); v != "" {
		cfg.Detector.Python = v
		cfg.Extractor.Python = v
	}
	if v := os.Getenv("DRISHTI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	cfg.Camera.DeviceID = envInt("DRISHTI_CAMERA_ID", cfg.Camera.DeviceID)
	cfg.Liveness.MaxFrames = envInt("DRISHTI_MAX_FRAMES", cfg.Liveness.MaxFrames)
	cfg.Matching.Threshold = envFloat("DRISHTI_MATCH_THRESHOLD", cfg.Matching.Threshold)
}

// envInt reads an environment variable as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

var validate = validator.New()

// Validate checks every section, including the liveness thresholds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
