package utils

import (
	"strconv"
	"time"
)

// -----------------------------------------------------------------------------

const defaultIntervalSeconds = 60

// -----------------------------------------------------------------------------

// ParseIntervalSeconds parses an interval string of the form <integer><unit>
// with units s, m, h, d, w, M (months approximated as 30 days).
// Anything unparseable falls back to 60 seconds.
func ParseIntervalSeconds(interval string) int64 {
	if len(interval) < 2 {
		return defaultIntervalSeconds
	}

	unit := interval[len(interval)-1]
	value, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || value <= 0 {
		return defaultIntervalSeconds
	}

	var unitSeconds int64
	switch unit {
	case 's':
		unitSeconds = 1
	case 'm':
		unitSeconds = 60
	case 'h':
		unitSeconds = 3600
	case 'd':
		unitSeconds = 86400
	case 'w':
		unitSeconds = 7 * 86400
	case 'M':
		unitSeconds = 30 * 86400
	default:
		return defaultIntervalSeconds
	}

	return int64(value) * unitSeconds
}

// -----------------------------------------------------------------------------

// IntervalDuration returns the interval as a time.Duration.
func IntervalDuration(interval string) time.Duration {
	return time.Duration(ParseIntervalSeconds(interval)) * time.Second
}
