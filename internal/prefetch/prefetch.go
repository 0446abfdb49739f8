// Package prefetch warms the cache on a schedule: the configured request
// configs are provided periodically so interactive callers mostly hit the
// cache.
package prefetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kacper-wojtaszczyk/weathermart/internal/plan"
	"github.com/kacper-wojtaszczyk/weathermart/internal/provider"
)

// Warmer periodically runs a set of request configs through the provider.
type Warmer struct {
	scheduler *gocron.Scheduler
	provider  *provider.Provider
	configs   []*plan.Config
	interval  time.Duration
	timeout   time.Duration
}

// New creates a warmer. The per-run timeout bounds one full pass over all
// configs.
func New(p *provider.Provider, interval, timeout time.Duration) *Warmer {
	return &Warmer{
		scheduler: gocron.NewScheduler(time.UTC),
		provider:  p,
		interval:  interval,
		timeout:   timeout,
	}
}

// Add registers a config for warming.
func (w *Warmer) Add(cfg *plan.Config) {
	w.configs = append(w.configs, cfg)
}

// Start schedules the periodic warm-up job and starts the scheduler.
func (w *Warmer) Start() error {
	if len(w.configs) == 0 {
		slog.Info("prefetch: no configs registered, nothing to schedule")
		return nil
	}

	_, err := w.scheduler.Every(w.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		w.Run(ctx)
	})
	if err != nil {
		return err
	}

	w.scheduler.StartAsync()
	return nil
}

// Run executes one warm-up pass. Per-unit failures are already isolated by
// the provider; a config-level failure is logged and the pass continues.
func (w *Warmer) Run(ctx context.Context) {
	slog.InfoContext(ctx, "prefetch pass started", "configs", len(w.configs))
	for _, cfg := range w.configs {
		result, err := w.provider.Provide(ctx, cfg)
		if err != nil {
			slog.ErrorContext(ctx, "prefetch config failed", "error", err)
			continue
		}
		slog.InfoContext(ctx, "prefetch config warmed", "fields", len(result.Fields), "warnings", len(result.Warnings))
	}
	slog.InfoContext(ctx, "prefetch pass completed")
}

// Stop stops the scheduler and cancels any future jobs.
func (w *Warmer) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
