package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/easygenie/orchestrator/pkg/models"
)

// modePriority orders providers per mode. Genie leans on depth-first
// models; Magic on fast ones.
var modePriority = map[models.Mode][]models.Provider{
	models.ModeGenie: {models.ProviderAnthropic, models.ProviderOpenAI, models.ProviderGemini},
	models.ModeMagic: {models.ProviderOpenAI, models.ProviderGemini, models.ProviderAnthropic},
}

// selectProvider picks the provider for the first attempt: the
// preferred one when healthy, then the mode's priority order, then any
// healthy provider, and OpenAI as the last resort.
func (o *Orchestrator) selectProvider(preferred models.Provider, mode models.Mode) models.Provider {
	if preferred != "" && o.available(preferred) {
		return preferred
	}
	for _, p := range modePriority[mode] {
		if o.available(p) {
			return p
		}
	}
	for _, p := range o.drivers.List() {
		if o.available(p) {
			return p
		}
	}
	return models.ProviderOpenAI
}

// fallbackProvider returns the first healthy provider other than
// current, walking the registry in stable order.
func (o *Orchestrator) fallbackProvider(current models.Provider) (models.Provider, bool) {
	for _, p := range o.drivers.List() {
		if p != current && o.available(p) {
			return p, true
		}
	}
	return "", false
}

// available reports whether a provider is enabled and last known
// healthy.
func (o *Orchestrator) available(p models.Provider) bool {
	if !o.drivers.Enabled(p) {
		return false
	}
	o.healthMu.RLock()
	defer o.healthMu.RUnlock()
	return o.healthy[p]
}

// markHealth records the outcome of the latest provider interaction.
func (o *Orchestrator) markHealth(p models.Provider, ok bool) {
	o.healthMu.Lock()
	o.healthy[p] = ok
	o.healthMu.Unlock()
}

// HealthCheck probes every registered provider concurrently and
// updates the health map.
func (o *Orchestrator) HealthCheck(ctx context.Context) map[models.Provider]*models.ProviderHealth {
	kinds := o.drivers.List()
	results := make([]*models.ProviderHealth, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			driver, cfg, ok := o.drivers.Get(kind)
			h := &models.ProviderHealth{Kind: kind, CheckedAt: o.now()}
			results[i] = h
			if !ok || !cfg.Enabled {
				h.Error = "disabled"
				return nil
			}
			checkCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()

			start := o.now()
			err := driver.HealthCheck(checkCtx, cfg)
			h.LatencyMS = o.now().Sub(start).Milliseconds()
			if err != nil {
				h.Error = err.Error()
			} else {
				h.Healthy = true
			}
			o.markHealth(kind, h.Healthy)
			return nil
		})
	}
	_ = g.Wait() // goroutines only report via results

	out := make(map[models.Provider]*models.ProviderHealth, len(results))
	for _, h := range results {
		out[h.Kind] = h
	}
	return out
}
