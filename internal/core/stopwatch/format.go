package stopwatch

import (
	"fmt"
	"math"
	"time"
)

// FormatTime renders d as MM:SS.mmm. Negative durations render as zero and
// minutes keep counting past 59.
func FormatTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalMs := int64(d / time.Millisecond)
	minutes := totalMs / 60000
	seconds := (totalMs % 60000) / 1000
	millis := totalMs % 1000
	return fmt.Sprintf("%02d:%02d.%03d", minutes, seconds, millis)
}

// FormatMillis is FormatTime for a raw millisecond value. NaN and infinities
// render as zero.
func FormatMillis(ms float64) string {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		ms = 0
	}
	return FormatTime(time.Duration(math.Floor(ms)) * time.Millisecond)
}
