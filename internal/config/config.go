package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"reqline/internal/domain"
)

// Config models reqline.yml.
type Config struct {
	Platform struct {
		Name string `yaml:"name"`
	} `yaml:"platform"`
	Departments []string          `yaml:"departments"`
	DesignTypes []string          `yaml:"design_types"`
	Roles       map[string]Role   `yaml:"roles"`
	Webhooks    []WebhookConfig   `yaml:"webhooks,omitempty"`
	Urgencies   map[string]int    `yaml:"urgencies,omitempty"`
	Aliases     map[string]string `yaml:"executor_type_aliases,omitempty"`
}

// Role carries the assignment defaults for one executor tier.
type Role struct {
	Capacity     int      `yaml:"capacity"`
	Priority     int      `yaml:"priority"`
	AllowedTypes []string `yaml:"allowed_types"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run rq config init", path)
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
	if c.Platform.Name == "" {
		return fmt.Errorf("config.platform.name is required")
	}
	if len(c.Departments) == 0 {
		return fmt.Errorf("config.departments is required")
	}
	for _, d := range c.Departments {
		if d == "" {
			return fmt.Errorf("config.departments contains an empty name")
		}
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("config.roles is required")
	}
	for name, role := range c.Roles {
		if !domain.IsExecutorRole(name) {
			return fmt.Errorf("config.roles has unknown executor role %s", name)
		}
		if role.Capacity <= 0 {
			return fmt.Errorf("role %s must have positive capacity", name)
		}
		if role.Priority < 1 || role.Priority > 3 {
			return fmt.Errorf("role %s priority must be a tier between 1 and 3", name)
		}
		if len(role.AllowedTypes) == 0 {
			return fmt.Errorf("role %s must allow at least one design type", name)
		}
		for _, t := range role.AllowedTypes {
			if t == domain.DesignTypeAll {
				continue
			}
			if len(c.DesignTypes) > 0 && !contains(c.DesignTypes, t) {
				return fmt.Errorf("role %s allows unknown design type %s", name, t)
			}
		}
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhook %d is missing a url", i)
		}
	}
	return nil
}

// RoleDefaults returns the configured defaults for an executor role,
// falling back to the built-in tier table when the role is not in the
// config.
func (c *Config) RoleDefaults(role string) (Role, bool) {
	if c != nil {
		if r, ok := c.Roles[role]; ok {
			return r, true
		}
	}
	switch role {
	case domain.RoleGerente:
		return Role{Capacity: 15, Priority: 1, AllowedTypes: []string{domain.DesignTypeAll}}, true
	case domain.RoleDisenador:
		return Role{Capacity: 8, Priority: 2, AllowedTypes: []string{"redes", "pieza_impresa", "presentacion", "video", "banner"}}, true
	case domain.RolePracticante:
		return Role{Capacity: 5, Priority: 3, AllowedTypes: []string{"redes", "pieza_impresa"}}, true
	}
	return Role{}, false
}

// KnownDepartment reports whether the department is in the catalog.
func (c *Config) KnownDepartment(name string) bool {
	if c == nil || len(c.Departments) == 0 {
		return true
	}
	return contains(c.Departments, name)
}

// KnownDesignType reports whether the design type is in the catalog.
func (c *Config) KnownDesignType(name string) bool {
	if c == nil || len(c.DesignTypes) == 0 {
		return true
	}
	return contains(c.DesignTypes, name)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "reqline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(platformName string) string {
	return fmt.Sprintf(defaultTemplate, platformName)
}

// Default returns the default Config struct.
func Default(platformName string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, platformName)), &cfg)
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

const defaultTemplate = `platform:
  name: %s

departments:
  - Dirección
  - Comunicaciones
  - Formación Empresarial
  - Comercial
  - Coworking - Casa Fenalco
  - Jurídico
  - Contabilidad
  - Fenalcobra
  - Fenalempleo

design_types:
  - redes
  - pieza_impresa
  - presentacion
  - video
  - banner
  - merchandising
  - emailing
  - otro

roles:
  gerente:
    capacity: 15
    priority: 1
    allowed_types: [all]
  diseñador:
    capacity: 8
    priority: 2
    allowed_types: [redes, pieza_impresa, presentacion, video, banner]
  practicante:
    capacity: 5
    priority: 3
    allowed_types: [redes, pieza_impresa]

urgencies:
  normal: 1
  urgent: 2
  express: 3

executor_type_aliases:
  manager: gerente
  designer: diseñador
  disenador: diseñador
`
