// Package config loads agentconsole settings from a YAML file with an
// environment overlay.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bazelment/agentconsole/event"
	"github.com/bazelment/agentconsole/session"
)

// Environment variables that override file settings.
const (
	EnvEndpoint = "AGENTCONSOLE_ENDPOINT"
	EnvToken    = "AGENTCONSOLE_TOKEN"
	EnvTenant   = "AGENTCONSOLE_TENANT"
	EnvUser     = "AGENTCONSOLE_USER"
)

// Approval modes accepted in the file.
const (
	ApprovalModePause    = "pause"
	ApprovalModeContinue = "continue"
)

// DefaultEndpoint is used when neither the file nor the environment set one.
const DefaultEndpoint = "http://localhost:8787/v1/agent/stream"

// Strings holds localized texts. Empty fields keep the built-in English.
type Strings struct {
	TransportError  string `yaml:"transport_error"`
	StepTitle       string `yaml:"step_title"`
	ApprovalMessage string `yaml:"approval_message"`
}

// Config holds agentconsole settings.
type Config struct {
	Context          map[string]interface{} `yaml:"context"`
	Strings          Strings                `yaml:"strings"`
	Endpoint         string                 `yaml:"endpoint"`
	ApprovalEndpoint string                 `yaml:"approval_endpoint"`
	TenantID         string                 `yaml:"tenant_id"`
	UserID           string                 `yaml:"user_id"`
	ApprovalMode     string                 `yaml:"approval_mode"`
	// Token is only read from the environment.
	Token   string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Endpoint:     DefaultEndpoint,
		ApprovalMode: ApprovalModePause,
	}
}

// Load reads the YAML file at path, falling back to defaults when it does not
// exist, then applies .env files and the process environment.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	// Load .env files if present; existing variables win.
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads only the YAML file.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ApprovalMode == "" {
		cfg.ApprovalMode = ApprovalModePause
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvEndpoint); ok && v != "" {
		c.Endpoint = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.Token = v
	}
	if v, ok := lookup(EnvTenant); ok && v != "" {
		c.TenantID = v
	}
	if v, ok := lookup(EnvUser); ok && v != "" {
		c.UserID = v
	}
}

// Validate checks the settings.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	switch c.ApprovalMode {
	case ApprovalModePause, ApprovalModeContinue:
	default:
		return fmt.Errorf("invalid approval_mode %q (want %q or %q)", c.ApprovalMode, ApprovalModePause, ApprovalModeContinue)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// SessionOptions translates the settings into engine options.
func (c *Config) SessionOptions() []session.Option {
	strs := session.DefaultStrings()
	if c.Strings.TransportError != "" {
		strs.TransportError = c.Strings.TransportError
	}
	ph := event.DefaultPlaceholders()
	if c.Strings.StepTitle != "" {
		ph.StepTitle = c.Strings.StepTitle
	}
	if c.Strings.ApprovalMessage != "" {
		ph.ApprovalMessage = c.Strings.ApprovalMessage
	}

	mode := session.ApprovalPause
	if c.ApprovalMode == ApprovalModeContinue {
		mode = session.ApprovalContinue
	}

	token, tenant, user, pageContext := c.Token, c.TenantID, c.UserID, c.Context
	return []session.Option{
		session.WithStrings(strs),
		session.WithPlaceholders(ph),
		session.WithApprovalMode(mode),
		session.WithCollaborators(session.Collaborators{
			Token:       func() string { return token },
			TenantID:    func() string { return tenant },
			UserID:      func() string { return user },
			PageContext: func() map[string]interface{} { return pageContext },
		}),
	}
}
