package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/observability"
	"go.uber.org/zap"
)

// SettlementRunner settles one batch of due transactions.
type SettlementRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

// SettlementWorker polls for transactions whose settlement time has passed.
// Safe for concurrent instances thanks to the SKIP LOCKED lease claim.
type SettlementWorker struct {
	svc          SettlementRunner
	pollInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewSettlementWorker(svc SettlementRunner) *SettlementWorker {
	return &SettlementWorker{
		svc:          svc,
		pollInterval: time.Second,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *SettlementWorker) WithPollInterval(interval time.Duration) *SettlementWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// Start runs the poll loop until Stop is called or ctx is canceled.
func (w *SettlementWorker) Start(ctx context.Context) {
	zap.L().Info("settlement worker starting", zap.Duration("poll_interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("settlement worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("settlement worker stop signal received")
			return
		case <-ticker.C:
			_ = w.ProcessOnce(ctx)
		}
	}
}

func (w *SettlementWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// ProcessOnce settles a single batch immediately.
func (w *SettlementWorker) ProcessOnce(ctx context.Context) error {
	processed, err := w.svc.RunOnce(ctx)
	if err != nil {
		observability.IncrementWorkerRun("settlement", "failed")
		zap.L().Error("settlement batch failed", zap.Int("processed", processed), zap.Error(err))
		return err
	}
	observability.IncrementWorkerRun("settlement", "success")
	if processed > 0 {
		zap.L().Info("settlement batch processed", zap.Int("processed", processed))
	}
	return nil
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *SettlementWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *SettlementWorker) String() string {
	return fmt.Sprintf("SettlementWorker(interval=%v)", w.pollInterval)
}
