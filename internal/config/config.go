package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models clearline.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"project"`
	Stages struct {
		// LeadTimes gives estimated start/end offsets in days from the
		// project start date, per tracking stage type.
		LeadTimes map[string]LeadTime `yaml:"lead_times"`
	} `yaml:"stages"`
	Assignment struct {
		// Defaults maps each task category to an ordered list of
		// candidate roles, tried in order when no rule matches.
		Defaults map[string][]string `yaml:"defaults"`
	} `yaml:"assignment"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type LeadTime struct {
	StartDay int `yaml:"start_day"`
	EndDay   int `yaml:"end_day"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

var knownStages = []string{
	"PRE_ARRIVAL_DOCS", "VESSEL_ARRIVAL", "CUSTOMS_DECLARATION", "CUSTOMS_PAYMENT",
	"INSPECTION", "PORT_FEES", "QUALITY_STANDARDS", "RELEASE", "LOADING",
	"IN_TRANSIT", "DELIVERED",
}

var knownCategories = []string{
	"DOCUMENTATION", "CUSTOMS_DECLARATION", "PAYMENT", "INSPECTION",
	"RELEASE", "DELIVERY", "GENERAL",
}

var knownRoles = map[string]bool{
	"ADMIN": true, "MANAGER": true, "CLERK": true, "AGENT": true, "ACCOUNTANT": true,
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with cl project config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Project.Kind != "clearance-project" {
		return fmt.Errorf("config.project.kind must be 'clearance-project'")
	}
	if c.Stages.LeadTimes == nil {
		return fmt.Errorf("config.stages.lead_times is required")
	}
	for stage, lt := range c.Stages.LeadTimes {
		found := false
		for _, known := range knownStages {
			if stage == known {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("lead time for unknown stage %s", stage)
		}
		if lt.EndDay < lt.StartDay {
			return fmt.Errorf("stage %s lead time ends before it starts", stage)
		}
	}
	if c.Assignment.Defaults == nil {
		return fmt.Errorf("config.assignment.defaults is required")
	}
	for category, roles := range c.Assignment.Defaults {
		found := false
		for _, known := range knownCategories {
			if category == known {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("assignment default for unknown category %s", category)
		}
		if len(roles) == 0 {
			return fmt.Errorf("assignment default for %s has no roles", category)
		}
		for _, role := range roles {
			if !knownRoles[role] {
				return fmt.Errorf("assignment default for %s references unknown role %s", category, role)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "clearline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	cfg.Project.Kind = "clearance-project"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  kind: clearance-project

stages:
  lead_times:
    PRE_ARRIVAL_DOCS:    { start_day: 0,  end_day: 2 }
    VESSEL_ARRIVAL:      { start_day: 2,  end_day: 3 }
    CUSTOMS_DECLARATION: { start_day: 3,  end_day: 5 }
    CUSTOMS_PAYMENT:     { start_day: 5,  end_day: 6 }
    INSPECTION:          { start_day: 6,  end_day: 8 }
    PORT_FEES:           { start_day: 8,  end_day: 9 }
    QUALITY_STANDARDS:   { start_day: 9,  end_day: 11 }
    RELEASE:             { start_day: 11, end_day: 12 }
    LOADING:             { start_day: 12, end_day: 13 }
    IN_TRANSIT:          { start_day: 13, end_day: 16 }
    DELIVERED:           { start_day: 16, end_day: 17 }

assignment:
  defaults:
    DOCUMENTATION:       [CLERK, AGENT]
    CUSTOMS_DECLARATION: [MANAGER, ADMIN]
    PAYMENT:             [ACCOUNTANT, MANAGER]
    INSPECTION:          [AGENT, MANAGER]
    RELEASE:             [AGENT, CLERK]
    DELIVERY:            [AGENT, CLERK]
    GENERAL:             [CLERK, MANAGER, ADMIN]
`
