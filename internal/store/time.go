package store

import (
	"fmt"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// Timestamps are stored as UTC RFC3339 text with nanoseconds.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", value, err)
	}
	return ts, nil
}
