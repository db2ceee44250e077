// internal/workers/notifications/process-due/poller.go
package processdue

import (
	"context"
	"time"

	"kennel-notifications/internal/common/logger"
)

// Runner runs one pass. *Handler implements it.
type Runner interface {
	RunPass(ctx context.Context, trigger Trigger) (Summary, error)
}

// Poller triggers a pass on a fixed interval. A tick that fires while a pass
// is still running is dropped by time.Ticker, so passes never pile up.
type Poller struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	logger     logger.Logger
}

func NewPoller(runner Runner, interval time.Duration, runOnStart bool, log logger.Logger) *Poller {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     log.WithFields(map[string]interface{}{"component": "poller"}),
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", map[string]interface{}{
		"interval":   p.interval.String(),
		"runOnStart": p.runOnStart,
	})

	if p.runOnStart {
		p.tick(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", nil)
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := p.runner.RunPass(ctx, TriggerTicker); err != nil && ctx.Err() == nil {
		p.logger.Error("scheduled pass failed", map[string]interface{}{"error": err})
	}
}
