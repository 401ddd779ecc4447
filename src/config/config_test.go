package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.yaml")
	content := "elevators: 4\nfloors: 20\ncapacity: 10\nspeed: 2\nalgorithm: scan\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NumElevators != 4 || cfg.NumFloors != 20 || cfg.Capacity != 10 {
		t.Errorf("Expected 4/20/10, got %d/%d/%d", cfg.NumElevators, cfg.NumFloors, cfg.Capacity)
	}
	if cfg.Speed != 2 || cfg.Algorithm != "scan" {
		t.Errorf("Expected speed 2 and scan, got %g and %s", cfg.Speed, cfg.Algorithm)
	}
	// Unset keys keep their defaults
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("elevators: 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestApplyEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "ELEVSIM_FLOORS=12\nELEVSIM_SPEED=1.5\nELEVSIM_ALGORITHM=scan\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, err := ApplyEnvFile(Default(), path)
	if err != nil {
		t.Fatalf("ApplyEnvFile: %v", err)
	}
	if cfg.NumFloors != 12 || cfg.Speed != 1.5 || cfg.Algorithm != "scan" {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestApplyEnvMalformed(t *testing.T) {
	_, err := ApplyEnv(Default(), map[string]string{"ELEVSIM_CAPACITY": "lots"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(c *Config) {}, true},
		{"no elevators", func(c *Config) { c.NumElevators = 0 }, false},
		{"one floor", func(c *Config) { c.NumFloors = 1 }, false},
		{"zero capacity", func(c *Config) { c.Capacity = 0 }, false},
		{"zero speed", func(c *Config) { c.Speed = 0 }, false},
		{"negative frequency", func(c *Config) { c.RequestFrequency = -1 }, false},
		{"max frequency", func(c *Config) { c.RequestFrequency = MaxRequestFrequency }, true},
		{"frequency above max", func(c *Config) { c.RequestFrequency = 1e9 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestApplyUpdate(t *testing.T) {
	speed := 3.0
	u := Update{Speed: &speed}
	cfg := Default().Apply(u)
	if cfg.Speed != 3 {
		t.Errorf("Expected speed 3, got %g", cfg.Speed)
	}
	if u.Structural() {
		t.Error("Speed update should not be structural")
	}
	floors := 9
	if !(Update{NumFloors: &floors}).Structural() {
		t.Error("Floor update should be structural")
	}
}
