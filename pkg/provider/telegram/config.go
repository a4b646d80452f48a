// Copyright 2024-2026 Aiku AI

package telegram

// Config holds the Telegram adapter settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token" env:"TELEGRAM_TOKEN" validate:"required_if=Enabled true"`
	// APIEndpoint overrides the Bot API URL format, for self-hosted Bot API
	// servers. It takes the token and the method name as %s verbs.
	APIEndpoint string `yaml:"api_endpoint"`
	// PollTimeout is the long polling timeout in seconds.
	PollTimeout int `yaml:"poll_timeout" validate:"gte=0"`
}
