// Copyright 2024-2026 Aiku AI

// Package config loads the relaybridge YAML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/relaybridge/pkg/bridge"
	"github.com/aiku/relaybridge/pkg/provider/discord"
	"github.com/aiku/relaybridge/pkg/provider/matrix"
	"github.com/aiku/relaybridge/pkg/provider/mattermost"
	"github.com/aiku/relaybridge/pkg/provider/telegram"
	"github.com/aiku/relaybridge/pkg/store"
)

//go:embed example-config.yaml
var ExampleConfig string

type Config struct {
	Bridge    bridge.Config     `yaml:"bridge"`
	Database  store.Config      `yaml:"database"`
	AdminAPI  AdminAPIConfig    `yaml:"admin_api"`
	Providers ProvidersConfig   `yaml:"providers"`
	Logging   zeroconfig.Config `yaml:"logging"`
}

type AdminAPIConfig struct {
	// Addr is the listen address. Empty disables the API.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

type ProvidersConfig struct {
	Mattermost mattermost.Config `yaml:"mattermost"`
	Matrix     matrix.Config     `yaml:"matrix"`
	Telegram   telegram.Config   `yaml:"telegram"`
	Discord    discord.Config    `yaml:"discord"`
}

// Enabled lists the names of the enabled providers.
func (p *ProvidersConfig) Enabled() []string {
	var names []string
	if p.Mattermost.Enabled {
		names = append(names, mattermost.Name)
	}
	if p.Matrix.Enabled {
		names = append(names, matrix.Name)
	}
	if p.Telegram.Enabled {
		names = append(names, telegram.Name)
	}
	if p.Discord.Enabled {
		names = append(names, discord.Name)
	}
	return names
}

var ErrNoProviders = errors.New("no providers are enabled")

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Bool, "bridge", "auth", "enabled")
	helper.Copy(up.Str, "bridge", "auth", "password")
	helper.Copy(up.Int, "bridge", "workers")
	helper.Copy(up.Int, "bridge", "queue_size")
	helper.Copy(up.Str, "bridge", "cleanup_interval")
	helper.Copy(up.Str, "bridge", "relay_prefix_template")

	helper.Copy(up.Str, "database", "path")
	helper.Copy(up.Bool, "database", "in_memory")

	helper.Copy(up.Str|up.Null, "admin_api", "addr")

	helper.Copy(up.Bool, "providers", "mattermost", "enabled")
	helper.Copy(up.Str, "providers", "mattermost", "server_url")
	helper.Copy(up.Str, "providers", "mattermost", "token")
	helper.Copy(up.Str, "providers", "mattermost", "bot_prefix")

	helper.Copy(up.Bool, "providers", "matrix", "enabled")
	helper.Copy(up.Str, "providers", "matrix", "homeserver_url")
	helper.Copy(up.Str, "providers", "matrix", "user_id")
	helper.Copy(up.Str, "providers", "matrix", "access_token")
	helper.Copy(up.Bool, "providers", "matrix", "auto_join")

	helper.Copy(up.Bool, "providers", "telegram", "enabled")
	helper.Copy(up.Str, "providers", "telegram", "token")
	helper.Copy(up.Str, "providers", "telegram", "api_endpoint")
	helper.Copy(up.Int, "providers", "telegram", "poll_timeout")

	helper.Copy(up.Bool, "providers", "discord", "enabled")
	helper.Copy(up.Str, "providers", "discord", "token")

	helper.Copy(up.Map, "logging")
}

var upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Blocks: [][]string{
		{"database"},
		{"admin_api"},
		{"providers"},
		{"logging"},
	},
	Base: ExampleConfig,
}

// Load reads the config file at path. Keys missing from the file take their
// value from the example config, then environment variables override
// secrets. The result is validated and post-processed.
func Load(path string) (*Config, error) {
	data, _, err := up.Do(path, false, upgrader)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read and upgrade step.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	if len(cfg.Providers.Enabled()) == 0 {
		return nil, ErrNoProviders
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := bridge.ValidatePassword(cfg.Bridge.Auth.Password); err != nil {
		return nil, fmt.Errorf("invalid bridge.auth.password: %w", err)
	}
	if err := cfg.Bridge.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid relay_prefix_template: %w", err)
	}
	return &cfg, nil
}
