package config

// Configuration loading and validation for linknode runs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tturner/linknode/internal/errors"
	"github.com/tturner/linknode/internal/update"
)

const (
	DefaultHost = "lcls-dev3"
	DefaultPort = 4356
)

// TargetConfig addresses the central node engine.
type TargetConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty"` // 0 waits forever for a reply
}

// FilesConfig names the file bases; files are <base>-<index>.txt.
type FilesConfig struct {
	Input      string `yaml:"input"`
	Mitigation string `yaml:"mitigation"`
}

// IterationConfig selects the indexes of each cycle and how many cycles run.
type IterationConfig struct {
	Start  int `yaml:"start"`
	Size   int `yaml:"size"`
	Repeat int `yaml:"repeat"` // 0 repeats forever
}

// EncodingConfig selects the status buffer layout.
type EncodingConfig struct {
	Layout string `yaml:"layout"` // "per-line" or "paired"
	Strict bool   `yaml:"strict,omitempty"`
}

// StatusConfig enables publication of cycle status to a Modbus TCP endpoint.
type StatusConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	UnitID    uint8  `yaml:"unit_id,omitempty"`
	Address   uint16 `yaml:"address,omitempty"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty"`
}

// Enabled reports whether status publication is configured.
func (s StatusConfig) Enabled() bool {
	return s.Endpoint != ""
}

// RunConfig represents a harness run configuration
type RunConfig struct {
	Target    TargetConfig    `yaml:"target"`
	Files     FilesConfig     `yaml:"files"`
	Iteration IterationConfig `yaml:"iteration"`
	Encoding  EncodingConfig  `yaml:"encoding"`
	Status    StatusConfig    `yaml:"status,omitempty"`
}

// CreateDefaultRunConfig returns the configuration used when no file is given.
func CreateDefaultRunConfig() *RunConfig {
	return &RunConfig{
		Target: TargetConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Files: FilesConfig{
			Input:      "updates",
			Mitigation: "mitigation",
		},
		Iteration: IterationConfig{
			Start: 1,
			Size:  1,
		},
		Encoding: EncodingConfig{
			Layout: update.LayoutPerLine.String(),
		},
	}
}

// WriteRunConfig writes cfg as YAML to path.
func WriteRunConfig(path string, cfg *RunConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadRunConfig loads a run configuration from a YAML file
// If the file doesn't exist and autoCreate is true, it will create a default config file
func LoadRunConfig(path string, autoCreate bool) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
		}
		if !autoCreate {
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		if err := WriteRunConfig(path, CreateDefaultRunConfig()); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapConfigError(fmt.Errorf("read created config file: %w", err), path)
		}
	}

	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}

	ApplyDefaults(&cfg)

	if err := ValidateRunConfig(&cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("validate config: %w", err), path)
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values that have a documented default.
func ApplyDefaults(cfg *RunConfig) {
	if cfg.Target.Host == "" {
		cfg.Target.Host = DefaultHost
	}
	if cfg.Target.Port == 0 {
		cfg.Target.Port = DefaultPort
	}
	if cfg.Iteration.Start == 0 {
		cfg.Iteration.Start = 1
	}
	if cfg.Iteration.Size == 0 {
		cfg.Iteration.Size = 1
	}
	if cfg.Encoding.Layout == "" {
		cfg.Encoding.Layout = update.LayoutPerLine.String()
	}
	if cfg.Status.Enabled() {
		if cfg.Status.UnitID == 0 {
			cfg.Status.UnitID = 1
		}
		if cfg.Status.TimeoutMs == 0 {
			cfg.Status.TimeoutMs = 1000
		}
	}
}

// ValidateRunConfig validates a run configuration
func ValidateRunConfig(cfg *RunConfig) error {
	if cfg.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}
	if cfg.Target.Port <= 0 || cfg.Target.Port > 65535 {
		return fmt.Errorf("target.port must be between 1 and 65535")
	}
	if cfg.Target.TimeoutMs < 0 {
		return fmt.Errorf("target.timeout_ms must be >= 0")
	}
	if cfg.Iteration.Start < 0 {
		return fmt.Errorf("iteration.start must be >= 0")
	}
	if cfg.Iteration.Size < 1 {
		return fmt.Errorf("iteration.size must be >= 1")
	}
	if cfg.Iteration.Repeat < 0 {
		return fmt.Errorf("iteration.repeat must be >= 0")
	}
	if _, err := update.ParseLayout(cfg.Encoding.Layout); err != nil {
		return fmt.Errorf("encoding.layout: %w", err)
	}
	if cfg.Status.Enabled() && cfg.Status.TimeoutMs < 0 {
		return fmt.Errorf("status.timeout_ms must be >= 0")
	}
	return nil
}
