// Package scheduler runs reconcile cycles on a fixed interval
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/internal/reconciliation"
	"github.com/Aidin1998/instapay/pkg/metrics"
	"github.com/Aidin1998/instapay/pkg/models"
)

// Reconciler runs one reconcile cycle
type Reconciler interface {
	ReconcileAll(ctx context.Context, actor string) (*reconciliation.ReconciliationReport, error)
}

// Driver fires reconcile cycles. At most one cycle runs at a time; a
// firing that finds a cycle in flight is dropped.
type Driver struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup
	stopCh  chan struct{}
	once    sync.Once
}

func NewDriver(logger *zap.Logger, reconciler Reconciler, interval time.Duration) *Driver {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Driver{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.Named("scheduler"),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the ticker loop and returns immediately
func (d *Driver) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
	d.logger.Info("reconcile scheduler started", zap.Duration("interval", d.interval))
}

// Stop ends the loop and waits for an in-flight cycle to finish
func (d *Driver) Stop() {
	d.once.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	d.logger.Info("reconcile scheduler stopped")
}

func (d *Driver) run(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.Trigger(ctx)
			}()
		}
	}
}

// Trigger runs one cycle as the scheduler. ran is false when another
// cycle was already in flight.
func (d *Driver) Trigger(ctx context.Context) (*reconciliation.ReconciliationReport, bool) {
	report, ran, err := d.TriggerAs(ctx, models.ActorCron)
	if err != nil {
		d.logger.Error("reconcile cycle failed", zap.Error(err))
	}
	return report, ran
}

// TriggerAs runs one cycle on behalf of actor
func (d *Driver) TriggerAs(ctx context.Context, actor string) (*reconciliation.ReconciliationReport, bool, error) {
	if !d.running.CompareAndSwap(false, true) {
		metrics.SkippedCycles.Inc()
		d.logger.Warn("reconcile cycle still running, skipping firing", zap.String("actor", actor))
		return nil, false, nil
	}
	defer d.running.Store(false)

	report, err := d.reconciler.ReconcileAll(ctx, actor)
	return report, true, err
}

// Running reports whether a cycle is in flight
func (d *Driver) Running() bool {
	return d.running.Load()
}
