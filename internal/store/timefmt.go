package store

import "time"

// timeLayout is used for every TEXT timestamp column. Binding
// time.Time values directly is driver-specific across sqlite
// packages, so every repository formats/parses explicitly instead.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
