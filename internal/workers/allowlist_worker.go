package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/alimgiray/hookmetrics/pkg/logger"
	"github.com/robfig/cron/v3"
)

const allowlistRefreshTimeout = 30 * time.Second

// Refresher reloads the sender allowlists
type Refresher interface {
	Refresh(ctx context.Context) error
}

// AllowlistWorker refreshes the allowlists once at start and then on a cron schedule
type AllowlistWorker struct {
	*BaseWorker
	refresher Refresher
	schedule  string
}

// NewAllowlistWorker validates schedule, a standard cron spec or descriptor such as "@every 1h"
func NewAllowlistWorker(workerID string, refresher Refresher, schedule string) (*AllowlistWorker, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid allowlist refresh schedule %q: %w", schedule, err)
	}
	return &AllowlistWorker{
		BaseWorker: NewBaseWorker(workerID),
		refresher:  refresher,
		schedule:   schedule,
	}, nil
}

// Start begins the allowlist refresh loop
func (w *AllowlistWorker) Start(ctx context.Context) error {
	w.setRunning(true)
	defer w.setRunning(false)
	log := logger.WithField("worker_id", w.WorkerID)
	log.WithField("schedule", w.schedule).Info("Allowlist worker started")

	w.refresh(ctx)

	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() { w.refresh(ctx) }); err != nil {
		return fmt.Errorf("schedule allowlist refresh: %w", err)
	}
	c.Start()

	select {
	case <-ctx.Done():
		log.Info("Allowlist worker stopping due to context cancellation")
	case <-w.StopChan:
		log.Info("Allowlist worker stopping")
	}

	// wait for an in-flight refresh
	<-c.Stop().Done()
	return nil
}

func (w *AllowlistWorker) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, allowlistRefreshTimeout)
	defer cancel()

	if err := w.refresher.Refresh(ctx); err != nil {
		logger.WithError(err).WithField("worker_id", w.WorkerID).Warn("Allowlist refresh failed, keeping previous ranges")
	}
}
