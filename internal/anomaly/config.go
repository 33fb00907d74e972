// Package anomaly flags statistically suspicious transactions for human review.
package anomaly

import (
	"fmt"

	apperrors "golang-reconciliation-engine/pkg/errors"
)

// Config holds the detector thresholds
type Config struct {
	// AverageGroupSize is the smallest counterparty group with a meaningful average
	AverageGroupSize int `mapstructure:"average_group_size" yaml:"average_group_size"`
	// TestGroupSize is the smallest group whose members are tested for outliers
	TestGroupSize int `mapstructure:"test_group_size" yaml:"test_group_size"`
	// UnusualFactor flags amounts above this multiple of the group average
	UnusualFactor int64 `mapstructure:"unusual_factor" yaml:"unusual_factor"`
	// HighFactor raises severity to high above this multiple
	HighFactor int64 `mapstructure:"high_factor" yaml:"high_factor"`
	// DuplicateWindowDays is the largest date gap between possible duplicates
	DuplicateWindowDays int `mapstructure:"duplicate_window_days" yaml:"duplicate_window_days"`
}

// DefaultConfig returns the standard detector thresholds
func DefaultConfig() *Config {
	return &Config{
		AverageGroupSize:    2,
		TestGroupSize:       3,
		UnusualFactor:       3,
		HighFactor:          5,
		DuplicateWindowDays: 3,
	}
}

// Validate checks the thresholds are usable
func (c *Config) Validate() error {
	if c.AverageGroupSize < 1 {
		return apperrors.ValidationError(apperrors.CodeOutOfRange, "anomaly.average_group_size", c.AverageGroupSize, nil)
	}
	if c.TestGroupSize < c.AverageGroupSize {
		return apperrors.ValidationError(apperrors.CodeOutOfRange, "anomaly.test_group_size", c.TestGroupSize, nil).
			WithSuggestion("test_group_size must be at least average_group_size")
	}
	if c.UnusualFactor < 1 {
		return apperrors.ValidationError(apperrors.CodeOutOfRange, "anomaly.unusual_factor", c.UnusualFactor, nil)
	}
	if c.HighFactor < c.UnusualFactor {
		return apperrors.ValidationError(apperrors.CodeOutOfRange, "anomaly.high_factor", c.HighFactor, nil).
			WithSuggestion("high_factor must be at least unusual_factor")
	}
	if c.DuplicateWindowDays < 0 {
		return apperrors.ValidationError(apperrors.CodeOutOfRange, "anomaly.duplicate_window_days", c.DuplicateWindowDays, nil)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("AnomalyConfig{groups: %d/%d, factors: %dx/%dx, duplicate window: %dd}",
		c.AverageGroupSize, c.TestGroupSize, c.UnusualFactor, c.HighFactor, c.DuplicateWindowDays)
}
