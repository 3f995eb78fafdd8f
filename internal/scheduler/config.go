package scheduler

import (
	"time"

	"github.com/smallbiznis/carebill/internal/config"
)

const (
	JobStuckSending = "stuck_sending"
	JobAutoDispatch = "auto_dispatch"
)

// Config controls scheduler intervals and job selection.
type Config struct {
	RunInterval       time.Duration
	RecoveryThreshold time.Duration
	JobTimeout        time.Duration
	LockTTL           time.Duration
	AutoDispatch      bool
	EnabledJobs       []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		RecoveryThreshold: 15 * time.Minute,
		JobTimeout:        2 * time.Minute,
		LockTTL:           5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:       cfg.Jobs.RunInterval,
		RecoveryThreshold: cfg.Jobs.RecoveryThreshold,
		AutoDispatch:      cfg.Jobs.AutoDispatch,
		EnabledJobs:       cfg.Jobs.EnabledJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = defaults.RecoveryThreshold
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	// A lease shorter than the job would let a second replica start it.
	if c.LockTTL < c.JobTimeout {
		c.LockTTL = c.JobTimeout
	}
	return c
}
