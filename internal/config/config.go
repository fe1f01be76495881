package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models sitework.yml.
type Config struct {
	Project struct {
		Name string `yaml:"name"`
	} `yaml:"project"`
	Server struct {
		Addr           string `yaml:"addr"`
		BasePath       string `yaml:"base_path"`
		JWTSecret      string `yaml:"jwt_secret"`
		AllowAnonymous bool   `yaml:"allow_anonymous"`
	} `yaml:"server"`
	// Tasks is the externally managed task catalog. Jobs can only be
	// linked to tasks listed here; the catalog is synced into the
	// read-only tasks table at startup.
	Tasks []TaskEntry `yaml:"tasks"`
}

type TaskEntry struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Project string `yaml:"project"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with sw init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("config.project.name is required")
	}
	seen := map[string]bool{}
	for i, t := range c.Tasks {
		if t.ID == "" {
			return fmt.Errorf("config.tasks[%d].id is required", i)
		}
		if t.Title == "" {
			return fmt.Errorf("task %s has empty title", t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("task id %s declared twice", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sitework.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectName string) string {
	return fmt.Sprintf(defaultTemplate, projectName)
}

// Default returns the default Config struct for a project.
func Default(projectName string) *Config {
	var cfg Config
	cfg.Project.Name = projectName
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectName))).Decode(&cfg)
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
  name: %s

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""
  allow_anonymous: true

tasks:
  - id: task-foundation
    title: "Foundation works"
    project: "Main site"
  - id: task-framing
    title: "Structural framing"
    project: "Main site"
  - id: task-electrical
    title: "Electrical installation"
    project: "Main site"
  - id: task-plumbing
    title: "Plumbing installation"
    project: "Main site"
  - id: task-finishing
    title: "Interior finishing"
    project: "Main site"
`
