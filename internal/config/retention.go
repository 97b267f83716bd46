package config

import (
	"fmt"
	"time"
)

// RetentionConfig holds configuration for analysis history retention
type RetentionConfig struct {
	// RetentionDays is how long analyses are kept (in days)
	// Analyses older than this are eligible for deletion
	// Default: 90, Range: 1-3650
	RetentionDays int `mapstructure:"days"`

	// CleanupIntervalHours is how often watch runs cleanup (in hours)
	// Default: 24, Range: 1-168 (1 week)
	CleanupIntervalHours int `mapstructure:"cleanup_interval_hours"`

	// CleanupEnabled controls whether watch runs cleanup automatically
	// Default: true
	CleanupEnabled bool `mapstructure:"cleanup_enabled"`

	// CleanupVacuum controls whether to run VACUUM after cleanup (SQLite only)
	// VACUUM reclaims disk space but can lock the database
	// Default: false
	CleanupVacuum bool `mapstructure:"cleanup_vacuum"`
}

// DefaultRetentionConfig returns the default retention configuration
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		RetentionDays:        90,
		CleanupIntervalHours: 24,
		CleanupEnabled:       true,
		CleanupVacuum:        false,
	}
}

// Validate checks if the configuration has valid values
func (c RetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 3650 {
		return fmt.Errorf("retention.days must be between 1 and 3650 (got %d)", c.RetentionDays)
	}
	if c.CleanupIntervalHours < 1 {
		return fmt.Errorf("cleanup_interval_hours must be at least 1 (got %d)",
			c.CleanupIntervalHours)
	}
	if c.CleanupIntervalHours > 168 {
		return fmt.Errorf("cleanup_interval_hours too large (got %d, max 168)",
			c.CleanupIntervalHours)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c RetentionConfig) String() string {
	return fmt.Sprintf(
		"RetentionConfig{RetentionDays: %d, CleanupInterval: %dh, Enabled: %t, Vacuum: %t}",
		c.RetentionDays, c.CleanupIntervalHours, c.CleanupEnabled, c.CleanupVacuum,
	)
}

// CleanupInterval returns the interval as a time.Duration
func (c RetentionConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}
