package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"github.com/ayo6706/crossborder-liquidity/internal/service"
	"go.uber.org/zap"
)

// Rebalancer performs one pool rebalance sweep.
type Rebalancer interface {
	Run(ctx context.Context) (service.RebalanceReport, error)
}

// RebalanceWorker sweeps the liquidity pools on a fixed interval.
type RebalanceWorker struct {
	svc      Rebalancer
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRebalanceWorker(svc Rebalancer) *RebalanceWorker {
	return &RebalanceWorker{
		svc:      svc,
		interval: 5 * time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *RebalanceWorker) WithInterval(interval time.Duration) *RebalanceWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *RebalanceWorker) Start(ctx context.Context) {
	zap.L().Info("rebalance worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("rebalance worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("rebalance worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RebalanceWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *RebalanceWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *RebalanceWorker) runOnce(ctx context.Context) {
	report, err := w.svc.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun("rebalance", "failed")
		zap.L().Error("rebalance sweep failed", zap.Error(err))
		return
	}
	if report.Skipped {
		observability.IncrementWorkerRun("rebalance", "skipped")
		return
	}
	observability.IncrementWorkerRun("rebalance", "success")
	zap.L().Info("rebalance sweep finished",
		zap.Int("rebalanced", len(report.Rebalanced)),
		zap.Int("failed", len(report.Failed)),
	)
}
