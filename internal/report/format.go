package report

import "fmt"

// FormatDuration renders game seconds as M:SS, or H:MM:SS past an hour.
// Missing or negative durations render as "-".
func FormatDuration(seconds *int) string {
	if seconds == nil || *seconds < 0 {
		return "-"
	}
	s := *seconds
	hours := s / 3600
	minutes := (s % 3600) / 60
	secs := s % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// FormatSeconds renders a fractional game timestamp the same way
func FormatSeconds(seconds float64) string {
	s := int(seconds)
	return FormatDuration(&s)
}

// StringOr dereferences s or returns fallback
func StringOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
