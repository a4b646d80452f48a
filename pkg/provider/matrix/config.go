// Copyright 2024-2026 Aiku AI

package matrix

// Config holds the Matrix adapter settings.
type Config struct {
	Enabled       bool   `yaml:"enabled"`
	HomeserverURL string `yaml:"homeserver_url" validate:"required_if=Enabled true,omitempty,url"`
	UserID        string `yaml:"user_id" validate:"required_if=Enabled true"`
	AccessToken   string `yaml:"access_token" env:"MATRIX_ACCESS_TOKEN" validate:"required_if=Enabled true"`
	// AutoJoin accepts every room invite sent to the bot.
	AutoJoin bool `yaml:"auto_join"`
}
