package worker

import (
	"context"
	"sync"
	"time"

	"complaintengine/service"

	"go.uber.org/zap"
)

// Retrier re-attempts notifications that are due
type Retrier interface {
	RetryDue(ctx context.Context) (*service.RetryStats, error)
}

// NotificationWorker is a background worker that retries deferred and failed notifications
type NotificationWorker struct {
	retrier  Retrier
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(retrier Retrier, interval time.Duration, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		retrier:  retrier,
		interval: interval,
		logger:   logger.Named("notification-worker"),
	}
}

// Start runs the retry loop in its own goroutine until Stop or ctx is done
func (w *NotificationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.logger.Warn("notification worker is already running")
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	w.logger.Info("notification worker started", zap.Duration("interval", w.interval))

	go w.run(ctx)
}

// Stop cancels the loop and waits for the current batch
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("notification worker stopped")
}

func (w *NotificationWorker) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce processes one batch of due notifications
func (w *NotificationWorker) RunOnce(ctx context.Context) *service.RetryStats {
	stats, err := w.retrier.RetryDue(ctx)
	if err != nil {
		w.logger.Error("notification retry failed", zap.Error(err))
		return nil
	}
	if stats.Processed > 0 {
		w.logger.Info("notification retry completed",
			zap.Int("processed", stats.Processed),
			zap.Int("delivered", stats.Delivered),
			zap.Int("failed", stats.Failed),
			zap.Int("rescheduled", stats.Rescheduled))
	}
	return stats
}
