// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Provider is the outbound half of a network adapter.
type Provider interface {
	Name() string
	Send(ctx context.Context, conversation ProviderID, text string) error
}

// Receiver is implemented by adapters that deliver inbound events. Run
// blocks until ctx is cancelled or the connection fails permanently.
type Receiver interface {
	Run(ctx context.Context, sink EventSink) error
}

// Registry holds the provider adapters known to the orchestrator. Adapters
// may be added and removed while events are being handled.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. Names must be unique.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("provider is nil")
	}
	name := p.Name()
	if name == "" {
		return errors.New("provider name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider already registered: %s", name)
	}
	r.providers[name] = p
	return nil
}

// Unregister removes a provider, reporting whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; !exists {
		return false
	}
	delete(r.providers, name)
	return true
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := lo.Keys(r.providers)
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Send delivers text to a conversation through the provider that owns it.
func (r *Registry) Send(ctx context.Context, conversation ProviderID, text string) error {
	p, ok := r.Get(conversation.Provider)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, conversation.Provider)
	}
	return p.Send(ctx, conversation, text)
}
