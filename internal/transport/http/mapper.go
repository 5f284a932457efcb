package http

import (
	"errors"
	"strings"
	"time"
)

var errInvalidDate = errors.New("invalid date")

// fromDateLayouts are tried in order. Layouts without a zone are read as UTC.
var fromDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// parseFromDate parses the optional fromDate query value. An empty value
// yields nil (no lower bound).
func parseFromDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range fromDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errInvalidDate
}
