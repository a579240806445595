package app

import "errors"

// Config holds everything a single App run needs from its entrypoint.
type Config struct {
	ProgramPath   string // program graph, JSON
	KernelPath    string // kernel descriptor
	InstancePath  string // instance descriptor, preferred over KernelPath
	ProfilePath   string
	BlockInfoPath string
	OutputPath    string // statistics file, overrides the config file
	ConfigPaths   []string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// Workers overrides the config file when positive.
	Workers int
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ProgramPath == "" {
		return nil, errors.New("a program file is required")
	}
	if cfg.KernelPath == "" && cfg.InstancePath == "" {
		return nil, errors.New("a kernel or instance descriptor is required")
	}
	if cfg.Workers < 0 {
		return nil, errors.New("workers must not be negative")
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, errors.New("healthcheck port must be between 0 and 65535")
	}
	return &cfg, nil
}

// descriptorPath returns the descriptor the run analyses.
func (c *Config) descriptorPath() string {
	if c.InstancePath != "" {
		return c.InstancePath
	}
	return c.KernelPath
}
