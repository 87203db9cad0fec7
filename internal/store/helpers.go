package store

import (
	"database/sql"
	"strings"
	"time"
)

// Timestamps are stored as RFC 3339 text in UTC.
func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNullTimestamp(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, ok := parseTimestamp(value.String)
	if !ok {
		return nil
	}
	return &t
}

// nullIfEmpty stores empty strings as NULL.
func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// inClause returns "?,?,?" and the matching arguments for an IN (...) filter.
func inClause[T any](values []T) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}
