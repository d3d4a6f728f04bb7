package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// knownTargetTypes are the target backends the compiler ships with
var knownTargetTypes = map[string]bool{
	"descriptor": true,
}

// TargetConfig selects a backend and the schema elements it claims
type TargetConfig struct {
	// Type names the backend, e.g. "descriptor"
	Type string `yaml:"type"`
	// Out is the backend's output path
	Out string `yaml:"out"`
	// Elements are the rule strings selecting this target's types; empty
	// means all
	Elements []string `yaml:"elements"`
}

// Config holds one compiler run's configuration
type Config struct {
	// SourcePath lists the roots to load and generate from
	SourcePath []string `yaml:"source_path"`
	// ProtoPath lists the roots loaded only to satisfy imports
	ProtoPath []string `yaml:"proto_path"`
	// TreeShakingRoots are the include rules seeding the pruner
	TreeShakingRoots []string `yaml:"tree_shaking_roots"`
	// TreeShakingRubbish are the exclude rules applied before pruning
	TreeShakingRubbish []string `yaml:"tree_shaking_rubbish"`
	// Targets are the backends, in claim order
	Targets []TargetConfig `yaml:"targets"`
}

// DefaultConfig returns the configuration used when no manifest is present
func DefaultConfig() *Config {
	return &Config{
		SourcePath:       []string{"."},
		TreeShakingRoots: []string{"*"},
	}
}

// Load reads and validates a manifest file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates manifest bytes
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills the documented defaults for omitted fields
func (c *Config) applyDefaults() {
	if len(c.SourcePath) == 0 {
		c.SourcePath = []string{"."}
	}
	if len(c.TreeShakingRoots) == 0 {
		c.TreeShakingRoots = []string{"*"}
	}
}

// Validate rejects configurations the compiler cannot run
func (c *Config) Validate() error {
	for _, target := range c.Targets {
		if !knownTargetTypes[target.Type] {
			return fmt.Errorf("unknown target type %q", target.Type)
		}
		if target.Out == "" {
			return fmt.Errorf("target %q requires an out path", target.Type)
		}
	}
	return nil
}
