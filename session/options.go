package session

import (
	"log/slog"
	"time"

	"github.com/bazelment/agentconsole/event"
	"github.com/bazelment/agentconsole/metrics"
)

// ApprovalMode selects what the engine does with the transport read while an
// approval is pending.
type ApprovalMode int

const (
	// ApprovalPause suspends the transport read until the approval is
	// resolved or the stream is cancelled. No server output is dropped.
	ApprovalPause ApprovalMode = iota
	// ApprovalContinue keeps reading and applying frames while the approval
	// is pending. A later approval request replaces the pending one.
	ApprovalContinue
)

// Collaborators supply per-send request data. Each is called once per Send;
// nil functions yield empty values.
type Collaborators struct {
	Token       func() string
	TenantID    func() string
	UserID      func() string
	PageContext func() map[string]interface{}
}

// Strings are the localized texts the engine writes into the conversation.
type Strings struct {
	TransportError string
}

// DefaultStrings returns the English strings.
func DefaultStrings() Strings {
	return Strings{
		TransportError: "Sorry, I couldn't reach the assistant. Please try again.",
	}
}

// Config holds engine configuration.
type Config struct {
	Logger       *slog.Logger
	Recorder     *metrics.Recorder
	Now          func() time.Time
	Collab       Collaborators
	Strings      Strings
	Placeholders event.Placeholders
	ApprovalMode ApprovalMode
}

// Option is a functional option for configuring an Engine.
type Option func(*Config)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(c *Config) {
		c.Recorder = r
	}
}

// WithCollaborators sets the token, tenant, user, and page-context providers.
func WithCollaborators(collab Collaborators) Option {
	return func(c *Config) {
		c.Collab = collab
	}
}

// WithStrings sets the localized conversation strings.
func WithStrings(s Strings) Option {
	return func(c *Config) {
		c.Strings = s
	}
}

// WithPlaceholders sets the localized defaults for missing event fields.
func WithPlaceholders(p event.Placeholders) Option {
	return func(c *Config) {
		c.Placeholders = p
	}
}

// WithApprovalMode sets how pending approvals affect the transport read.
func WithApprovalMode(mode ApprovalMode) Option {
	return func(c *Config) {
		c.ApprovalMode = mode
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Logger:       slog.New(slog.DiscardHandler),
		Now:          time.Now,
		Strings:      DefaultStrings(),
		Placeholders: event.DefaultPlaceholders(),
		ApprovalMode: ApprovalPause,
	}
}

func (c Collaborators) token() string {
	if c.Token == nil {
		return ""
	}
	return c.Token()
}

func (c Collaborators) tenantID() string {
	if c.TenantID == nil {
		return ""
	}
	return c.TenantID()
}

func (c Collaborators) userID() string {
	if c.UserID == nil {
		return ""
	}
	return c.UserID()
}

func (c Collaborators) pageContext() map[string]interface{} {
	if c.PageContext == nil {
		return map[string]interface{}{}
	}
	if pc := c.PageContext(); pc != nil {
		return pc
	}
	return map[string]interface{}{}
}
