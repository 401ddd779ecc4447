package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	TickInterval      = 100 * time.Millisecond
	BaseMoveInterval  = 1 * time.Second
	DoorDwellTime     = 2 * time.Second
	FloorCallTTL      = 120 * time.Second
	LobbyFloor        = 1
	DefaultPriority   = 2
	EmergencyPriority = 8

	HybridThrottle           = 500 * time.Millisecond
	HybridThrottleHighVolume = 200 * time.Millisecond
	BatchThreshold           = 20
	RepositionInterval       = 15 * time.Second
	MinReversalDwell         = 5 * time.Second

	AdmitFactor      = 10 // active requests per elevator before arrivals are backlogged
	MaxActiveFactor  = 30 // hard ceiling on active requests per elevator
	MaxBacklog       = 1000
	HistoryLimit     = 200
	HistoryMaxAge    = 5 * time.Minute
	UpdateBufferSize = 16

	MaxRequestFrequency = 6000 // per minute, keeps the generator interval at 10ms or more
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds the simulation parameters that can be set at initialize time.
type Config struct {
	NumElevators     int     `yaml:"elevators"`
	NumFloors        int     `yaml:"floors"`
	Capacity         int     `yaml:"capacity"`
	Speed            float64 `yaml:"speed"`
	RequestFrequency float64 `yaml:"request_frequency"` // generated requests per minute, 0 disables
	Algorithm        string  `yaml:"algorithm"`
	LogLevel         string  `yaml:"log_level"`
}

// Update is a partial config. Nil fields are left untouched.
type Update struct {
	NumElevators     *int
	NumFloors        *int
	Capacity         *int
	Speed            *float64
	RequestFrequency *float64
}

func Default() Config {
	return Config{
		NumElevators:     3,
		NumFloors:        15,
		Capacity:         8,
		Speed:            1,
		RequestFrequency: 0,
		Algorithm:        "hybrid",
		LogLevel:         "info",
	}
}

// Validate checks ranges. Algorithm names are checked by the engine.
func (c Config) Validate() error {
	switch {
	case c.NumElevators < 1:
		return fmt.Errorf("%w: elevators must be at least 1, got %d", ErrInvalidConfig, c.NumElevators)
	case c.NumFloors < 2:
		return fmt.Errorf("%w: floors must be at least 2, got %d", ErrInvalidConfig, c.NumFloors)
	case c.Capacity < 1:
		return fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidConfig, c.Capacity)
	case c.Speed <= 0:
		return fmt.Errorf("%w: speed must be positive, got %g", ErrInvalidConfig, c.Speed)
	case c.RequestFrequency < 0 || c.RequestFrequency > MaxRequestFrequency:
		return fmt.Errorf("%w: request frequency must be within 0..%d per minute, got %g", ErrInvalidConfig, MaxRequestFrequency, c.RequestFrequency)
	}
	return nil
}

// Apply returns a copy of c with the non-nil fields of u set.
func (c Config) Apply(u Update) Config {
	if u.NumElevators != nil {
		c.NumElevators = *u.NumElevators
	}
	if u.NumFloors != nil {
		c.NumFloors = *u.NumFloors
	}
	if u.Capacity != nil {
		c.Capacity = *u.Capacity
	}
	if u.Speed != nil {
		c.Speed = *u.Speed
	}
	if u.RequestFrequency != nil {
		c.RequestFrequency = *u.RequestFrequency
	}
	return c
}

// Structural reports whether u touches fields that require rebuilding the roster.
func (u Update) Structural() bool {
	return u.NumElevators != nil || u.NumFloors != nil || u.Capacity != nil
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnvFile overrides cfg with ELEVSIM_* keys from a .env file.
func ApplyEnvFile(cfg Config, path string) (Config, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return cfg, fmt.Errorf("read env file %s: %w", path, err)
	}
	return ApplyEnv(cfg, env)
}

// ApplyEnv overrides cfg with ELEVSIM_* keys from env.
//   - unknown keys are ignored
//   - malformed numbers are reported with the offending key
func ApplyEnv(cfg Config, env map[string]string) (Config, error) {
	ints := map[string]*int{
		"ELEVSIM_ELEVATORS": &cfg.NumElevators,
		"ELEVSIM_FLOORS":    &cfg.NumFloors,
		"ELEVSIM_CAPACITY":  &cfg.Capacity,
	}
	for key, dst := range ints {
		raw, ok := env[key]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return cfg, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, raw)
		}
		*dst = v
	}
	floats := map[string]*float64{
		"ELEVSIM_SPEED":             &cfg.Speed,
		"ELEVSIM_REQUEST_FREQUENCY": &cfg.RequestFrequency,
	}
	for key, dst := range floats {
		raw, ok := env[key]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, raw)
		}
		*dst = v
	}
	if v, ok := env["ELEVSIM_ALGORITHM"]; ok {
		cfg.Algorithm = strings.TrimSpace(v)
	}
	if v, ok := env["ELEVSIM_LOG_LEVEL"]; ok {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	return cfg, cfg.Validate()
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
