// Package notifyconfig models the static notification routing map: one
// entry per event type, naming the roles, optional per-stage roles, and the
// mailable template used when that event fires. Absence of an entry for an
// event type is a valid, meaningful state.
package notifyconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"stagegate/internal/stage"
)

// Entry is the routing config for one event type.
type Entry struct {
	Roles               []string            `yaml:"roles"`
	StageRoles          map[string][]string `yaml:"stage_roles"`
	IncludeProjectOwner bool                `yaml:"include_project_owner"`
	Mailable            string              `yaml:"mailable"`
}

type Config struct {
	Events map[string]Entry `yaml:"events"`
}

// Lookup returns the entry for an event type. The second return is false
// when no entry exists, which callers treat as "do nothing".
func (c *Config) Lookup(eventType string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.Events[eventType]
	return e, ok
}

// Validate ensures role names are non-empty, stage keys parse, and every
// entry names a mailable.
func (c *Config) Validate() error {
	for evt, entry := range c.Events {
		if evt == "" {
			return fmt.Errorf("config.events contains empty event type")
		}
		if entry.Mailable == "" {
			return fmt.Errorf("event %s has no mailable", evt)
		}
		for _, role := range entry.Roles {
			if role == "" {
				return fmt.Errorf("event %s has empty role name", evt)
			}
		}
		for st, roles := range entry.StageRoles {
			if _, err := stage.Parse(st); err != nil {
				return fmt.Errorf("event %s stage_roles: %w", evt, err)
			}
			for _, role := range roles {
				if role == "" {
					return fmt.Errorf("event %s stage %s has empty role name", evt, st)
				}
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "stagegate.yml")
}

// Load reads and validates config from a workspace.
func Load(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config %s not found; import with sg notify config import --file <path>", Path(workspace))
	}
	return cfg, err
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return cfg, err
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

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `events:
  project.created:
    roles: [Admin]
    include_project_owner: true
    mailable: project_created

  project.updated:
    include_project_owner: true
    mailable: project_updated

  project.stage_changed:
    include_project_owner: true
    stage_roles:
      feasibility: [Feasibility Analyst]
      scoping: [Scoping Lead]
      scheduling: [Scheduling Officer]
      detailed_design: [Design Lead]
      development: [Development Manager]
      build: [Build Manager]
      testing: [Test Manager]
      deployed: [Deployment Manager]
      completed: [Admin]
      cancelled: [Admin]
    mailable: stage_changed

  feasibility.approved:
    roles: [Scoping Lead]
    include_project_owner: true
    mailable: feasibility_decision

  feasibility.rejected:
    include_project_owner: true
    mailable: feasibility_decision

  scoping.submitted:
    roles: [Scoping Lead]
    mailable: scoping_submitted

  scheduling.scheduled:
    roles: [Scheduling Officer]
    include_project_owner: true
    mailable: scheduling_scheduled

  scheduling.submitted_to_review:
    roles: [Scheduling Officer]
    mailable: scheduling_review

  uat.requested:
    roles: [Test Manager]
    mailable: uat_requested

  uat.accepted:
    roles: [Test Manager, Deployment Manager]
    include_project_owner: true
    mailable: uat_decision

  uat.rejected:
    roles: [Test Manager, Development Manager]
    include_project_owner: true
    mailable: uat_decision

  service_acceptance.requested:
    roles: [Deployment Manager]
    mailable: service_acceptance_requested

  deployment.approved:
    roles: [Deployment Manager]
    include_project_owner: true
    mailable: deployment_approved

  deployment.service_accepted:
    roles: [Deployment Manager, Admin]
    include_project_owner: true
    mailable: deployment_service_accepted
`
