// Copyright 2024-2026 Aiku AI

package mattermost

// Config holds the Mattermost adapter settings.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	ServerURL string `yaml:"server_url" validate:"required_if=Enabled true,omitempty,url"`
	// Token is a bot or personal access token.
	Token string `yaml:"token" env:"MATTERMOST_TOKEN" validate:"required_if=Enabled true"`
	// BotPrefix is a username prefix for echo prevention. Any Mattermost
	// username starting with this prefix is treated as another bridge bot and
	// its posts are not relayed. Leave empty to disable prefix-based filtering.
	BotPrefix string `yaml:"bot_prefix"`
}
