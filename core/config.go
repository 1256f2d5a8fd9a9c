package core

import (
	"fmt"
	"strings"
	"time"
)

type SweepConfig struct {
	Interval         time.Duration `koanf:"interval" mapstructure:"interval"`
	AuthorityTimeout time.Duration `koanf:"authority_timeout" mapstructure:"authority_timeout"`
}

type Config struct {
	ServiceName       string      `koanf:"service_name" mapstructure:"service_name"`
	Sweep             SweepConfig `koanf:"sweep" mapstructure:"sweep"`
	WarningThresholds []int       `koanf:"warning_thresholds" mapstructure:"warning_thresholds"`
	ConflictRetries   int         `koanf:"conflict_retries" mapstructure:"conflict_retries"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "grants",
		Sweep: SweepConfig{
			Interval:         30 * time.Second,
			AuthorityTimeout: 5 * time.Second,
		},
		WarningThresholds: []int{60, 10, 1},
		ConflictRetries:   3,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("core: sweep.interval must be positive")
	}
	if c.Sweep.AuthorityTimeout <= 0 {
		return fmt.Errorf("core: sweep.authority_timeout must be positive")
	}
	if c.ConflictRetries < 1 {
		return fmt.Errorf("core: conflict_retries must be at least 1")
	}
	for _, threshold := range c.WarningThresholds {
		if threshold <= 0 {
			return fmt.Errorf("core: warning threshold %d must be positive", threshold)
		}
	}
	return nil
}
