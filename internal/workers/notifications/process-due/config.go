// internal/workers/notifications/process-due/config.go
package processdue

import (
	"fmt"
	"os"
	"time"

	"kennel-notifications/internal/common/config"

	"github.com/google/uuid"
)

type Config struct {
	WorkerID           string
	BatchSize          int
	Concurrency        int
	DispatchTimeout    time.Duration
	ClaimLease         time.Duration
	JobTimeout         time.Duration
	RateLimitPerSecond int
	PollInterval       time.Duration
	RunOnStart         bool
}

// LoadConfig maps the notifications section onto worker settings. An empty
// worker id becomes <hostname>-<short uuid>.
func LoadConfig(cfg config.NotificationConfig) *Config {
	c := &Config{
		WorkerID:           cfg.WorkerID,
		BatchSize:          cfg.BatchSize,
		Concurrency:        cfg.Concurrency,
		DispatchTimeout:    config.GetDuration(cfg.DispatchTimeout),
		ClaimLease:         config.GetDuration(cfg.ClaimLease),
		JobTimeout:         config.GetDuration(cfg.JobTimeout),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		PollInterval:       config.GetDuration(cfg.PollInterval),
		RunOnStart:         cfg.RunOnStart,
	}
	if c.WorkerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		c.WorkerID = fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = 5 * time.Minute
	}
	// A claimed job must finish well inside its lease or the reconciler
	// may expire it while it is still running.
	if c.JobTimeout <= 0 || c.JobTimeout >= c.ClaimLease {
		c.JobTimeout = c.ClaimLease / 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
}
