// Package providers implements the upstream AI provider drivers.
//
// Each provider gets one file implementing contracts.ProviderDriver.
// The Registry holds the configured drivers; the orchestrator routes
// through it and never switches on provider kind itself.
package providers

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/easygenie/orchestrator/pkg/contracts"
	"github.com/easygenie/orchestrator/pkg/models"
)

// Registry is a thread-safe driver registry keyed by provider kind.
type Registry struct {
	mu      sync.RWMutex
	drivers map[models.Provider]contracts.ProviderDriver
	configs map[models.Provider]models.ProviderConfig
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[models.Provider]contracts.ProviderDriver),
		configs: make(map[models.Provider]models.ProviderConfig),
	}
}

// Register installs a driver with its configuration.
func (r *Registry) Register(d contracts.ProviderDriver, cfg models.ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Kind()] = d
	r.configs[d.Kind()] = cfg
}

// Get returns the driver and config for a provider kind.
func (r *Registry) Get(kind models.Provider) (contracts.ProviderDriver, models.ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[kind]
	if !ok {
		return nil, models.ProviderConfig{}, false
	}
	return d, r.configs[kind], true
}

// List returns the registered provider kinds in stable order.
func (r *Registry) List() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Provider, 0, len(r.drivers))
	for kind := range r.drivers {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Enabled reports whether the provider is registered and enabled.
func (r *Registry) Enabled(kind models.Provider) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[kind]
	return ok && cfg.Enabled
}

// newHTTPClient builds the shared client shape drivers use.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
