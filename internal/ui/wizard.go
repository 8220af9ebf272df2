// Package ui holds the interactive `init` wizard.
package ui

import (
	"fmt"
	"strings"

	"github.com/tturner/linknode/internal/config"
	"github.com/tturner/linknode/internal/update"
)

// WizardOptions are the answers collected by the init wizard.
type WizardOptions struct {
	Host           string
	Port           int
	TimeoutMs      int
	Input          string
	Mitigation     string
	Start          int
	Size           int
	Repeat         int
	Layout         string
	Strict         bool
	StatusEndpoint string
	StatusUnitID   int
	StatusAddress  int
}

// BuildRunConfig turns wizard answers into a validated run configuration.
func BuildRunConfig(opts WizardOptions) (*config.RunConfig, error) {
	if strings.TrimSpace(opts.Input) == "" {
		return nil, fmt.Errorf("input file base is required")
	}
	if strings.TrimSpace(opts.Mitigation) == "" {
		return nil, fmt.Errorf("mitigation file base is required")
	}
	layout, err := update.ParseLayout(opts.Layout)
	if err != nil {
		return nil, err
	}
	if opts.StatusUnitID < 0 || opts.StatusUnitID > 255 {
		return nil, fmt.Errorf("status unit id must be between 0 and 255")
	}
	if opts.StatusAddress < 0 || opts.StatusAddress > 0xFFFF {
		return nil, fmt.Errorf("status address must be between 0 and 65535")
	}

	cfg := &config.RunConfig{
		Target: config.TargetConfig{
			Host:      strings.TrimSpace(opts.Host),
			Port:      opts.Port,
			TimeoutMs: opts.TimeoutMs,
		},
		Files: config.FilesConfig{
			Input:      strings.TrimSpace(opts.Input),
			Mitigation: strings.TrimSpace(opts.Mitigation),
		},
		Iteration: config.IterationConfig{
			Start:  opts.Start,
			Size:   opts.Size,
			Repeat: opts.Repeat,
		},
		Encoding: config.EncodingConfig{
			Layout: layout.String(),
			Strict: opts.Strict,
		},
	}
	if endpoint := strings.TrimSpace(opts.StatusEndpoint); endpoint != "" {
		cfg.Status = config.StatusConfig{
			Endpoint: endpoint,
			UnitID:   uint8(opts.StatusUnitID),
			Address:  uint16(opts.StatusAddress),
		}
	}

	config.ApplyDefaults(cfg)
	if err := config.ValidateRunConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunInitWizard asks for run settings and writes them to path.
func RunInitWizard(path string) (*config.RunConfig, error) {
	form := buildInitForm(config.CreateDefaultRunConfig())
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard: %w", err)
	}
	opts, err := wizardOptionsFromForm(form)
	if err != nil {
		return nil, err
	}
	cfg, err := BuildRunConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := config.WriteRunConfig(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
