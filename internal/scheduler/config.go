package scheduler

import (
	"time"

	"github.com/smallbiznis/cdrbill/internal/config"
)

// Config controls how often the scheduler checks whether a job is due.
type Config struct {
	Enabled        bool
	RunInterval    time.Duration
	InvoiceTimeout time.Duration
	// CDRTimeoutSlack is added to the carrier poll timeout to bound a CDR job.
	CDRTimeoutSlack time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		InvoiceTimeout:  30 * time.Minute,
		CDRTimeoutSlack: 30 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.Enabled = cfg.Scheduler.Enabled
	return c
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.InvoiceTimeout <= 0 {
		c.InvoiceTimeout = defaults.InvoiceTimeout
	}
	if c.CDRTimeoutSlack <= 0 {
		c.CDRTimeoutSlack = defaults.CDRTimeoutSlack
	}
	return c
}
