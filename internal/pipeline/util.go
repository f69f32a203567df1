package pipeline

import "fmt"

// FormatDurationShort formats milliseconds into a compact human-readable string.
//
//	<1000ms  -> "0.Xs"
//	<60000ms -> "X.Xs"
//	<3600000 -> "XmYs"
//	else     -> "XhYm"
func FormatDurationShort(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("0.%ds", ms/100)
	case ms < 60000:
		return fmt.Sprintf("%d.%ds", ms/1000, (ms%1000)/100)
	case ms < 3600000:
		return fmt.Sprintf("%dm%ds", ms/60000, (ms%60000)/1000)
	default:
		return fmt.Sprintf("%dh%dm", ms/3600000, (ms%3600000)/60000)
	}
}

// TruncateMiddle shortens s to maxLen by replacing its middle with "...".
func TruncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	available := maxLen - 3
	first := (available + 1) / 2
	last := available / 2
	return s[:first] + "..." + s[len(s)-last:]
}

// ShortID returns the first 8 characters of a run ID.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
