package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/internal/reconciliation"
	"github.com/Aidin1998/instapay/pkg/metrics"
	"github.com/Aidin1998/instapay/pkg/models"
)

// blockingReconciler holds every cycle until release is closed
type blockingReconciler struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
	actors  sync.Map
	err     error
}

func newBlockingReconciler() *blockingReconciler {
	return &blockingReconciler{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (r *blockingReconciler) ReconcileAll(ctx context.Context, actor string) (*reconciliation.ReconciliationReport, error) {
	r.calls.Add(1)
	r.actors.Store(actor, true)
	r.started <- struct{}{}
	<-r.release
	if r.err != nil {
		return nil, r.err
	}
	return &reconciliation.ReconciliationReport{Processed: 1}, nil
}

func TestTriggerSkipsWhileCycleRuns(t *testing.T) {
	rec := newBlockingReconciler()
	d := NewDriver(zap.NewNop(), rec, time.Hour)
	before := testutil.ToFloat64(metrics.SkippedCycles)

	done := make(chan bool)
	go func() {
		_, ran := d.Trigger(context.Background())
		done <- ran
	}()
	<-rec.started
	assert.True(t, d.Running())

	report, ran := d.Trigger(context.Background())
	assert.False(t, ran)
	assert.Nil(t, report)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SkippedCycles))

	close(rec.release)
	assert.True(t, <-done)
	assert.False(t, d.Running())
	assert.Equal(t, int32(1), rec.calls.Load())
	_, ok := rec.actors.Load(models.ActorCron)
	assert.True(t, ok)
}

func TestTriggerRunsAgainAfterCycleEnds(t *testing.T) {
	rec := newBlockingReconciler()
	close(rec.release)
	d := NewDriver(zap.NewNop(), rec, time.Hour)

	for i := 0; i < 3; i++ {
		report, ran := d.Trigger(context.Background())
		require.True(t, ran)
		assert.Equal(t, 1, report.Processed)
	}
	assert.Equal(t, int32(3), rec.calls.Load())
}

func TestTriggerAsSurfacesErrors(t *testing.T) {
	rec := newBlockingReconciler()
	rec.err = errors.New("db down")
	close(rec.release)
	d := NewDriver(zap.NewNop(), rec, time.Hour)

	_, ran, err := d.TriggerAs(context.Background(), models.ActorAPI)
	assert.True(t, ran)
	assert.EqualError(t, err, "db down")
	_, ok := rec.actors.Load(models.ActorAPI)
	assert.True(t, ok)
}

func TestStartFiresOnIntervalAndStopWaits(t *testing.T) {
	rec := newBlockingReconciler()
	d := NewDriver(zap.NewNop(), rec, 10*time.Millisecond)
	d.Start(context.Background())

	select {
	case <-rec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never fired")
	}

	// further ticks land while the first cycle is blocked and are skipped
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), rec.calls.Load())

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned before the running cycle finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(rec.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
