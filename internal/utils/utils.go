package utils

import (
	"fmt"
	"time"
)

// FormatTimeDuration formats duration to human readable string
func FormatTimeDuration(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	} else {
		return fmt.Sprintf("%ds", seconds)
	}
}

// ShortID trims a participant id for display, keeping the tail that differs
// between peers.
func ShortID(id string, max int) string {
	if max <= 3 || len(id) <= max {
		return id
	}
	return "..." + id[len(id)-(max-3):]
}
