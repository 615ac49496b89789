package worker

import (
	"context"
	"time"

	"github.com/gigpay/taskpay/internal/observability"
	"github.com/gigpay/taskpay/internal/service"
	"go.uber.org/zap"
)

// ExpiryWorker sweeps overdue orders into terminal states in the background.
// Safe for concurrent instances thanks to FOR UPDATE SKIP LOCKED.
type ExpiryWorker struct {
	expirySvc    *service.ExpiryService
	pollInterval time.Duration
	stopCh       chan struct{}
}

// NewExpiryWorker creates a new ExpiryWorker instance.
func NewExpiryWorker(expirySvc *service.ExpiryService) *ExpiryWorker {
	return &ExpiryWorker{
		expirySvc:    expirySvc,
		pollInterval: time.Minute,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *ExpiryWorker) WithPollInterval(interval time.Duration) *ExpiryWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// Start runs the sweep loop until Stop is called or the context is canceled.
func (w *ExpiryWorker) Start(ctx context.Context) {
	zap.L().Info("expiry worker starting", zap.Duration("interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("expiry worker stopping", zap.String("reason", "context canceled"))
			return
		case <-w.stopCh:
			zap.L().Info("expiry worker stopping", zap.String("reason", "stop signal"))
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *ExpiryWorker) Stop() {
	close(w.stopCh)
}

func (w *ExpiryWorker) sweepOnce(ctx context.Context) {
	if _, err := w.expirySvc.Sweep(ctx); err != nil {
		observability.IncrementWorkerRun("expiry", "error")
		zap.L().Error("expiry sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("expiry", "ok")
}

// SweepOnce runs a single sweep immediately. Useful for manual triggering.
func (w *ExpiryWorker) SweepOnce(ctx context.Context) (service.SweepResult, error) {
	return w.expirySvc.Sweep(ctx)
}

// Run starts the worker and returns a function that can be called to stop it.
func (w *ExpiryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}
