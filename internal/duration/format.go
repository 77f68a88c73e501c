package duration

import "fmt"

// FormatTimespan renders a call duration in seconds as MM:SS with both
// fields zero-padded to two digits. Durations of an hour or more keep
// growing the minutes field (3600 → "60:00").
func FormatTimespan(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
