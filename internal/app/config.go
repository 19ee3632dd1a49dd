package app

import (
	"errors"
	"time"
)

// DefaultPollInterval is how often Run reports progress.
const DefaultPollInterval = 2 * time.Second

// ItemReferences names the reference images of one item: up to two
// characters and a scene of the project.
type ItemReferences struct {
	Character1 string
	Character2 string
	Scene      string
}

// Config holds everything an App needs for one run.
type Config struct {
	ConfigPaths []string // hcl files or directories

	// List prints the available templates instead of generating.
	List bool
	// Describe names a template whose nodes are printed instead of generating.
	Describe string

	Workflow   string
	Project    string
	Chapter    string
	Style      string
	Width      int
	Height     int
	Negative   string
	Prompts    []string
	References []ItemReferences

	PollInterval    time.Duration
	HealthcheckPort int
	LogFormat       string
	LogLevel        string
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if !cfg.List && cfg.Describe == "" && len(cfg.Prompts) == 0 {
		return nil, errors.New("at least one prompt is required")
	}
	if len(cfg.References) > 0 && len(cfg.References) != len(cfg.Prompts) {
		return nil, errors.New("the number of -ref flags must match the number of prompts")
	}
	if len(cfg.References) > 0 && cfg.Project == "" {
		return nil, errors.New("reference images require a project")
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return nil, errors.New("width and height must not be negative")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &cfg, nil
}
