// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mau.fi/util/random"
	"golang.org/x/sync/errgroup"
)

// Orchestrator consumes events from provider adapters, runs commands and
// routes messages between connected conversations.
type Orchestrator struct {
	store    Store
	registry *Registry
	config   Config
	log      zerolog.Logger

	now      func() time.Time
	newToken func() string

	events   chan Event
	commands map[string]commandHandler
	forwards sync.WaitGroup
}

var _ EventSink = (*Orchestrator)(nil)

// New creates an orchestrator. The config must have been post-processed.
func New(store Store, registry *Registry, config Config, log zerolog.Logger) *Orchestrator {
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	o := &Orchestrator{
		store:    store,
		registry: registry,
		config:   config,
		log:      log.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
		newToken: func() string { return random.String(TokenLength) },
		events:   make(chan Event, queueSize),
	}
	o.registerCommands()
	return o
}

// Registry returns the provider registry the orchestrator sends through.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Publish queues an event for the worker pool. It blocks while the queue is
// full.
func (o *Orchestrator) Publish(ctx context.Context, evt Event) error {
	select {
	case o.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the worker pool and blocks until ctx is cancelled. Events are
// handled concurrently with no ordering between them.
func (o *Orchestrator) Run(ctx context.Context) error {
	workers := o.config.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	o.log.Info().Int("workers", workers).Msg("Starting orchestrator")

	g, ctx := errgroup.WithContext(ctx)
	for i := range workers {
		g.Go(func() error {
			return o.work(ctx, i)
		})
	}
	if o.config.CleanupInterval > 0 {
		g.Go(func() error {
			o.cleanupLoop(ctx, o.config.CleanupInterval)
			return nil
		})
	}

	err := g.Wait()
	o.forwards.Wait()
	o.log.Info().Msg("Orchestrator stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (o *Orchestrator) work(ctx context.Context, worker int) error {
	for {
		select {
		case <-ctx.Done():
			o.log.Debug().Int("worker", worker).Msg("Stopping worker")
			return ctx.Err()
		case evt := <-o.events:
			o.Handle(ctx, evt)
		}
	}
}

// Handle processes a single event synchronously. Message forwards it starts
// may still be in flight when it returns.
func (o *Orchestrator) Handle(ctx context.Context, evt Event) {
	switch evt.Kind {
	case EventCommand:
		o.dispatch(ctx, evt)
	default:
		o.route(ctx, evt)
	}
}

// PurgeExpired deletes pending connections whose token has expired.
func (o *Orchestrator) PurgeExpired(ctx context.Context) (int, error) {
	return o.store.PurgeExpiredPending(ctx, o.now().Add(-TokenTTL))
}

// SetDirection changes the forwarding policy of a completed connection.
func (o *Orchestrator) SetDirection(ctx context.Context, id uuid.UUID, dir Direction) (*Connection, error) {
	conn, err := o.store.SetDirection(ctx, id, dir)
	if err != nil {
		return nil, err
	}
	o.log.Info().Stringer("connection_id", id).Str("direction", string(dir)).Msg("Changed connection direction")
	return conn, nil
}

func (o *Orchestrator) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := o.PurgeExpired(ctx)
			if err != nil {
				o.log.Error().Err(err).Msg("Failed to purge expired connections")
			} else if purged > 0 {
				o.log.Info().Int("count", purged).Msg("Purged expired pending connections")
			}
		}
	}
}
