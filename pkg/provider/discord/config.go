// Copyright 2024-2026 Aiku AI

package discord

// Config holds the Discord adapter settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token" env:"DISCORD_TOKEN" validate:"required_if=Enabled true"`
}
