package config

import "time"

// RetentionConfig controls job document retention and cleanup behavior.
type RetentionConfig struct {
	// JobRetentionDays is how many days to keep completed/failed jobs
	// before soft-deleting them.
	JobRetentionDays int `yaml:"job_retention_days"`

	// CleanupInterval is how often the retention sweep loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		JobRetentionDays: 90,
		CleanupInterval:  12 * time.Hour,
	}
}
