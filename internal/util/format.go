// Package util holds small formatting helpers shared by the status
// display and the demo player.
package util

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration as m:ss, matching the layout the
// status view uses for playback position.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	m := total / 60
	s := total % 60
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatBytes renders a byte count as a short human-readable size
// (e.g. "384.0KB"), used by the status view to show buffered bytes
// against the high/resume watermarks without printing raw byte counts.
func FormatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := int64(n) / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB"}
	return fmt.Sprintf("%.1f%s", float64(n)/float64(div), units[exp])
}
