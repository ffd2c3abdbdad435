package scheduler

import (
	"time"

	"github.com/aware88/fresh-crm/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int

	DeliveryBatchSize int
	RefreshBatchSize  int
	ScoreBatchSize    int
	RolloverBatchSize int

	// TokenRefreshWindow is how far before expiry OAuth tokens get refreshed.
	TokenRefreshWindow time.Duration

	// ScoreStaleAfter is how old a lead score may be before the nightly
	// sweep recomputes it.
	ScoreStaleAfter time.Duration

	// EnabledJobs restricts which jobs this instance runs. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:        time.Minute,
		BatchSize:          50,
		DeliveryBatchSize:  50,
		RefreshBatchSize:   25,
		ScoreBatchSize:     100,
		RolloverBatchSize:  25,
		TokenRefreshWindow: 10 * time.Minute,
		ScoreStaleAfter:    24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: time.Duration(cfg.Scheduler.RunIntervalSeconds) * time.Second,
		BatchSize:   cfg.Scheduler.BatchSize,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.DeliveryBatchSize <= 0 {
		c.DeliveryBatchSize = defaults.DeliveryBatchSize
	}
	if c.RefreshBatchSize <= 0 {
		c.RefreshBatchSize = defaults.RefreshBatchSize
	}
	if c.ScoreBatchSize <= 0 {
		c.ScoreBatchSize = defaults.ScoreBatchSize
	}
	if c.RolloverBatchSize <= 0 {
		c.RolloverBatchSize = defaults.RolloverBatchSize
	}
	if c.TokenRefreshWindow <= 0 {
		c.TokenRefreshWindow = defaults.TokenRefreshWindow
	}
	if c.ScoreStaleAfter <= 0 {
		c.ScoreStaleAfter = defaults.ScoreStaleAfter
	}
	return c
}
