package diagnostics

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// FormatBytes renders a byte count with binary units and at most one
// decimal place, e.g. "0 B", "1.5 KB", "1 GB".
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n)
	for _, unit := range []string{"KB", "MB", "GB", "TB", "PB"} {
		v /= 1024
		if v < 1024 || unit == "PB" {
			rounded := math.Round(v*10) / 10
			return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + unit
		}
	}
	return fmt.Sprintf("%d B", n)
}

// FormatRelativeTime renders a past timestamp the way a technician
// reads it on the device: "Never" for a nil time, coarse buckets up to
// a week, then an absolute date.
func FormatRelativeTime(t *time.Time, now time.Time) string {
	if t == nil {
		return "Never"
	}
	d := now.Sub(*t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 48*time.Hour:
		return "Yesterday"
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
