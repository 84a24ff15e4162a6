package age

import "time"

// AgeData computes how long ago startedAt was and whether it is known.
// Future timestamps clamp to zero.
func AgeData(startedAt time.Time, now time.Time) (time.Duration, bool) {
	if startedAt.IsZero() {
		return 0, false
	}
	return clamp(now.Sub(startedAt)), true
}

// DurationData computes how long something ran. While running it ages
// against now; once stopped it spans startedAt to stoppedAt.
func DurationData(startedAt, stoppedAt time.Time, running bool, now time.Time) (time.Duration, bool) {
	if running {
		return AgeData(startedAt, now)
	}
	if startedAt.IsZero() || stoppedAt.IsZero() {
		return 0, false
	}
	return clamp(stoppedAt.Sub(startedAt)), true
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
