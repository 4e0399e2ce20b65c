package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/teslamqtt/core/wake"
)

// WakeConfig tunes the wake-up polling loop.
type WakeConfig struct {
	Retries  int           `json:"retries"`
	Interval time.Duration `json:"interval"`
}

func (c *WakeConfig) SetDefaults() {
	if c.Retries == 0 {
		c.Retries = wake.DefaultRetries
	}
	if c.Interval == 0 {
		c.Interval = wake.DefaultInterval
	}
}

func (c WakeConfig) Validate() error {
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	return nil
}

// Options converts the section into coordinator options.
func (c WakeConfig) Options() wake.Options {
	return wake.Options{Retries: c.Retries, Interval: c.Interval}
}
