package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrProcessorRunning is returned by Run when the loop is already active.
var ErrProcessorRunning = errors.New("schedule processor is already running")

// ScheduleProcessorConfig holds configuration for the schedule processor
type ScheduleProcessorConfig struct {
	// Interval is how often to reconcile (default: 15m)
	Interval time.Duration

	// OnMaterialized, if set, is called after a run that created records.
	OnMaterialized func(created int)
}

// DefaultScheduleProcessorConfig returns sensible defaults
func DefaultScheduleProcessorConfig() ScheduleProcessorConfig {
	return ScheduleProcessorConfig{Interval: 15 * time.Minute}
}

// ScheduleProcessor runs the reconciler periodically so a scheduled day is
// materialized even when nobody opens the dashboard.
type ScheduleProcessor struct {
	reconciler *Reconciler
	config     ScheduleProcessorConfig

	mu      sync.Mutex
	running bool
}

// NewScheduleProcessor creates a new schedule processor
func NewScheduleProcessor(reconciler *Reconciler, config ScheduleProcessorConfig) *ScheduleProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultScheduleProcessorConfig().Interval
	}
	return &ScheduleProcessor{reconciler: reconciler, config: config}
}

// Run reconciles immediately and then on every tick until ctx is cancelled.
// Reconcile failures are logged and do not stop the loop.
func (p *ScheduleProcessor) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrProcessorRunning
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	slog.InfoContext(ctx, "Schedule processor started", "interval", p.config.Interval)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Schedule processor stopped")
			return nil
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation at the reconciler's current time.
func (p *ScheduleProcessor) RunOnce(ctx context.Context) int {
	created, err := p.reconciler.Reconcile(ctx, p.reconciler.now())
	if err != nil {
		slog.ErrorContext(ctx, "Scheduled reconciliation failed", "error", err)
		return 0
	}
	if created > 0 && p.config.OnMaterialized != nil {
		p.config.OnMaterialized(created)
	}
	return created
}

// IsRunning returns whether the loop is currently active
func (p *ScheduleProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
