package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"gapline/internal/prioritize"
)

// Config models gapline.yml.
type Config struct {
	Scoring   prioritize.Scoring `yaml:"scoring" json:"scoring"`
	Quadrants struct {
		Roadmap prioritize.Thresholds `yaml:"roadmap" json:"roadmap"`
		Matrix  prioritize.Thresholds `yaml:"matrix" json:"matrix"`
	} `yaml:"quadrants" json:"quadrants"`
	Allocation struct {
		MaxPerPhase int `yaml:"max_per_phase" json:"max_per_phase"`
	} `yaml:"allocation" json:"allocation"`
	Activation struct {
		ActionTemplate []ActionTemplate `yaml:"action_template" json:"action_template"`
	} `yaml:"activation" json:"activation"`
}

type ActionTemplate struct {
	Title string `yaml:"title" json:"title"`
}

const (
	ProfileRoadmap = "roadmap"
	ProfileMatrix  = "matrix"
)

// Thresholds returns the quadrant thresholds for a named profile.
func (c *Config) Thresholds(profile string) (prioritize.Thresholds, error) {
	switch profile {
	case "", ProfileRoadmap:
		return c.Quadrants.Roadmap, nil
	case ProfileMatrix:
		return c.Quadrants.Matrix, nil
	default:
		return prioritize.Thresholds{}, fmt.Errorf("unknown quadrant profile %q", profile)
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("config.scoring: %w", err)
	}
	if err := c.Quadrants.Roadmap.Validate(); err != nil {
		return fmt.Errorf("config.quadrants.roadmap: %w", err)
	}
	if err := c.Quadrants.Matrix.Validate(); err != nil {
		return fmt.Errorf("config.quadrants.matrix: %w", err)
	}
	if err := prioritize.ValidateCapacity(c.Allocation.MaxPerPhase); err != nil {
		return fmt.Errorf("config.allocation.max_per_phase: %w", err)
	}
	if len(c.Activation.ActionTemplate) == 0 {
		return fmt.Errorf("config.activation.action_template must list at least one action")
	}
	for i, a := range c.Activation.ActionTemplate {
		if strings.TrimSpace(a.Title) == "" {
			return fmt.Errorf("config.activation.action_template[%d] has empty title", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "gapline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with gl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the workspace config, or the defaults when the file is missing.
func LoadOrDefault(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(DefaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections keep
// their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := base()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func base() *Config {
	var cfg Config
	cfg.Scoring = prioritize.DefaultScoring()
	cfg.Quadrants.Roadmap = prioritize.RoadmapThresholds()
	cfg.Quadrants.Matrix = prioritize.MatrixThresholds()
	cfg.Allocation.MaxPerPhase = prioritize.DefaultMaxPerPhase
	cfg.Activation.ActionTemplate = []ActionTemplate{
		{Title: "Confirm scope, sponsor and owner"},
		{Title: "Define baseline and target indicators"},
		{Title: "Execute the first delivery increment"},
		{Title: "Measure results against the baseline"},
	}
	return &cfg
}

const DefaultTemplate = `scoring:
  need_weight: 1.0
  impact_weight: 2.0
  effort_weight: 1.0
  top_contributors: 3
  banding:
    high_share: 0.3
    medium_share: 0.7

quadrants:
  # phase allocation
  roadmap:
    impact_min: 3
    effort_max: 2
  # impact/effort matrix view
  matrix:
    impact_min: 4
    effort_max: 3

allocation:
  max_per_phase: 4

activation:
  action_template:
    - title: "Confirm scope, sponsor and owner"
    - title: "Define baseline and target indicators"
    - title: "Execute the first delivery increment"
    - title: "Measure results against the baseline"
`
