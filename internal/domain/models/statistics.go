package models

import "math"

// SessionCounts are the raw counters a statistics projection is built from.
type SessionCounts struct {
	Expected     int64
	Found        int64
	Unregistered int64
	WrittenOff   int64
}

// Statistics is the completion projection of an inventory session.
type Statistics struct {
	TotalExpected        int64   `json:"total_expected"`
	TotalFound           int64   `json:"total_found"`
	TotalNotFound        int64   `json:"total_not_found"`
	TotalUnregistered    int64   `json:"total_unregistered"`
	TotalWrittenOff      int64   `json:"total_written_off"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

// ComputeStatistics derives the completion counters. It has no side effects
// and yields all zeros for an empty session.
func ComputeStatistics(c SessionCounts) Statistics {
	stats := Statistics{
		TotalExpected:     c.Expected,
		TotalFound:        c.Found,
		TotalUnregistered: c.Unregistered,
		TotalWrittenOff:   c.WrittenOff,
	}

	notFound := c.Expected - c.Found - c.WrittenOff
	if notFound < 0 {
		notFound = 0
	}
	stats.TotalNotFound = notFound

	if c.Expected > 0 {
		pct := 100 * float64(c.Found+c.WrittenOff) / float64(c.Expected)
		pct = math.Round(pct*10) / 10
		stats.CompletionPercentage = math.Max(0, math.Min(100, pct))
	}

	return stats
}
