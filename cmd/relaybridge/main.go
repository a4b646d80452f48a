// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command relaybridge relays chat messages between conversations on
// Mattermost, Matrix, Telegram and Discord. Conversations are connected in
// band with /token and /connect.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"go.mau.fi/util/exzerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/relaybridge/pkg/adminapi"
	"github.com/aiku/relaybridge/pkg/bridge"
	"github.com/aiku/relaybridge/pkg/config"
	"github.com/aiku/relaybridge/pkg/provider/discord"
	"github.com/aiku/relaybridge/pkg/provider/matrix"
	"github.com/aiku/relaybridge/pkg/provider/mattermost"
	"github.com/aiku/relaybridge/pkg/provider/telegram"
	"github.com/aiku/relaybridge/pkg/store"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath     = pflag.StringP("config", "c", "config.yaml", "Path to the config file")
	generateConfig = pflag.BoolP("generate-example-config", "g", false, "Write the example config to the config path and exit")
	hashPassword   = pflag.String("hash-password", "", "Print an argon2id hash of the given password for bridge.auth.password and exit")
	showVersion    = pflag.Bool("version", false, "Print the version and exit")
)

func main() {
	pflag.Parse()
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "relaybridge:", err)
		os.Exit(1)
	}
}

func run() error {
	switch {
	case *showVersion:
		fmt.Printf("relaybridge %s (commit %s, built %s)\n", Tag, Commit, BuildTime)
		return nil
	case *hashPassword != "":
		fmt.Println(bridge.HashPassword(*hashPassword))
		return nil
	case *generateConfig:
		return writeExampleConfig(*configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	exzerolog.SetupDefaults(log)
	log.Info().Str("version", Tag).Str("commit", Commit).Msg("Starting relaybridge")

	db, err := store.Open(cfg.Database, *log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Err(err).Msg("Failed to close database")
		}
	}()

	registry := bridge.NewRegistry()
	receivers, err := startProviders(cfg, registry, *log)
	if err != nil {
		return err
	}
	orchestrator := bridge.New(db, registry, cfg.Bridge, *log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orchestrator.Run(ctx)
	})
	for name, receiver := range receivers {
		g.Go(func() error {
			err := receiver.Run(ctx, orchestrator)
			if err != nil {
				// The other networks keep relaying without this one.
				log.Err(err).Str("provider", name).Msg("Provider stopped, unregistering it")
				registry.Unregister(name)
			}
			return nil
		})
	}
	if cfg.AdminAPI.Addr != "" {
		api := adminapi.New(cfg.AdminAPI.Addr, orchestrator, *log)
		g.Go(func() error {
			return api.Run(ctx)
		})
	}

	err = g.Wait()
	log.Info().Msg("Shutting down")
	return err
}

// startProviders creates the enabled adapters and registers them for
// sending. Adapters that also receive are returned by name.
func startProviders(cfg *config.Config, registry *bridge.Registry, log zerolog.Logger) (map[string]bridge.Receiver, error) {
	var adapters []bridge.Provider
	p := cfg.Providers
	if p.Mattermost.Enabled {
		adapters = append(adapters, mattermost.New(p.Mattermost, log))
	}
	if p.Matrix.Enabled {
		adapter, err := matrix.New(p.Matrix, log)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	if p.Telegram.Enabled {
		adapter, err := telegram.New(p.Telegram, log)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	if p.Discord.Enabled {
		adapter, err := discord.New(p.Discord, log)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}

	receivers := make(map[string]bridge.Receiver, len(adapters))
	for _, adapter := range adapters {
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
		if receiver, ok := adapter.(bridge.Receiver); ok {
			receivers[adapter.Name()] = receiver
		}
		log.Info().Str("provider", adapter.Name()).Msg("Registered provider")
	}
	return receivers, nil
}

func writeExampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite it", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.WriteFile(path, []byte(config.ExampleConfig), 0o600); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}
	fmt.Printf("Wrote example config to %s\n", path)
	return nil
}
