package worker

import (
	"context"
	"sync"
	"time"

	"complaintengine/models"

	"go.uber.org/zap"
)

// Sweeper runs one escalation pass
type Sweeper interface {
	Sweep(ctx context.Context) (*models.SweepResult, error)
}

// EscalationWorker is a background worker that periodically sweeps overdue complaints
type EscalationWorker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewEscalationWorker creates a new escalation worker
func NewEscalationWorker(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *EscalationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.Named("escalation-worker"),
	}
}

// Start runs the sweep loop in its own goroutine until Stop or ctx is done
func (w *EscalationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.logger.Warn("escalation worker is already running")
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	w.logger.Info("escalation worker started", zap.Duration("interval", w.interval))

	go w.run(ctx)
}

// Stop cancels the loop and waits for an in-flight sweep to finish
func (w *EscalationWorker) Stop() {
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
	w.logger.Info("escalation worker stopped")
}

func (w *EscalationWorker) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Process immediately on start
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

// RunOnce performs a single sweep. It is safe to call repeatedly.
func (w *EscalationWorker) RunOnce(ctx context.Context) *models.SweepResult {
	result, err := w.sweeper.Sweep(ctx)
	if err != nil {
		w.logger.Error("escalation sweep failed", zap.Error(err))
		return nil
	}

	for _, r := range result.Results {
		if r.Escalated {
			w.logger.Info("complaint escalated",
				zap.String("complaint_id", r.ComplaintID),
				zap.Int("level", r.Level),
				zap.Float64("overdue_hours", r.OverdueHours))
		}
	}
	w.logger.Info("escalation sweep completed",
		zap.Duration("duration", result.Duration),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("escalated", result.Escalated),
		zap.Int("failed", result.Failed))
	return result
}
