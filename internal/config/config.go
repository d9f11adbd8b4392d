package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"taskledger/internal/domain"
)

// Config models taskledger.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret        string `yaml:"jwt_secret"`
		AllowActorHeader bool   `yaml:"allow_actor_header"`
		DevLogin         bool   `yaml:"dev_login"`
	} `yaml:"auth"`
	Webhooks  []WebhookConfig `yaml:"webhooks"`
	SeedUsers []SeedUser      `yaml:"seed_users"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// SeedUser is created at startup when missing, so a fresh workspace always
// has at least one admin able to create tasks.
type SeedUser struct {
	ID       string `yaml:"id"`
	Email    string `yaml:"email"`
	FullName string `yaml:"full_name"`
	Role     string `yaml:"role"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with tl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	seen := map[string]bool{}
	for i, u := range c.SeedUsers {
		if u.Email == "" {
			return fmt.Errorf("seed_users[%d].email is required", i)
		}
		if seen[u.Email] {
			return fmt.Errorf("seed_users[%d].email %s duplicated", i, u.Email)
		}
		seen[u.Email] = true
		if !domain.Role(u.Role).Valid() {
			return fmt.Errorf("seed_users[%d].role must be ADMIN or CUSTOMER, got %q", i, u.Role)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskledger.yml")
}

// Default returns the built-in config.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v1"
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns a starter config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

auth:
  # Secret for signing and verifying bearer tokens (HS256).
  jwt_secret: ""
  # Allow the X-Actor-Id header in place of a bearer token (dev only).
  allow_actor_header: false
  # Expose POST /auth/dev/login to mint tokens without credentials (dev only).
  dev_login: false

# Webhooks receive task assignment and status-change notifications.
webhooks: []
#  - url: https://example.test/hooks/taskledger
#    secret: changeme
#    events: [ASSIGNED, STATUS_CHANGED]
#    timeout_seconds: 5

seed_users:
  - id: admin
    email: admin@local.test
    full_name: Admin
    role: ADMIN
`
