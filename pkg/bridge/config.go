// Copyright 2024-2026 Aiku AI

package bridge

import (
	"text/template"
	"time"
)

const (
	defaultWorkers             = 4
	defaultQueueSize           = 128
	defaultRelayPrefixTemplate = "{{.DisplayName}}: "
)

// Config holds the orchestrator settings.
type Config struct {
	Auth AuthConfig `yaml:"auth"`

	Workers   int `yaml:"workers" validate:"gte=0"`
	QueueSize int `yaml:"queue_size" validate:"gte=0"`
	// CleanupInterval enables a periodic purge of expired pending
	// connections. Zero disables it; expiry is always checked on /connect.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	// RelayPrefixTemplate is prepended to every forwarded message.
	RelayPrefixTemplate string `yaml:"relay_prefix_template"`

	relayPrefix *template.Template `yaml:"-"`
}

// AuthConfig controls the admin gate.
type AuthConfig struct {
	// Enabled turns on the admin gate. When false every sender may use
	// privileged commands.
	Enabled bool `yaml:"enabled"`
	// Password is either plain text or an $argon2id$ encoded hash.
	Password string `yaml:"password" env:"RELAYBRIDGE_AUTH_PASSWORD" validate:"required_if=Enabled true"`
}

// RelayPrefixParams holds the parameters for rendering the relay prefix.
type RelayPrefixParams struct {
	DisplayName  string
	Provider     string
	Conversation string
}

// PostProcess fills defaults and compiles the relay prefix template.
func (c *Config) PostProcess() error {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.RelayPrefixTemplate == "" {
		c.RelayPrefixTemplate = defaultRelayPrefixTemplate
	}
	var err error
	c.relayPrefix, err = template.New("relay_prefix").Parse(c.RelayPrefixTemplate)
	return err
}

// FormatRelayPrefix renders the relay prefix for a forwarded message.
func (c *Config) FormatRelayPrefix(params RelayPrefixParams) string {
	if c.relayPrefix == nil {
		return params.DisplayName + ": "
	}
	var buf []byte
	err := c.relayPrefix.Execute((*templateBuffer)(&buf), params)
	if err != nil {
		return params.DisplayName + ": "
	}
	return string(buf)
}

// templateBuffer is a simple io.Writer that appends to a byte slice.
type templateBuffer []byte

func (b *templateBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
