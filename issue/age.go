package issue

import (
	"time"

	internalage "github.com/amonks/issues/internal/age"
	"github.com/amonks/issues/internal/ui"
)

// PendingLabel is shown in place of an age while CreatedAt is unresolved.
const PendingLabel = "Just now"

// AgeData computes how long ago the issue was created and whether that is
// known yet.
func AgeData(item Issue, now time.Time) (time.Duration, bool) {
	if item.CreatedAt == nil {
		return 0, false
	}
	return internalage.AgeData(*item.CreatedAt, now)
}

// DurationData computes how long the issue has been (or was) open. Done
// issues stop the clock at their last update.
func DurationData(item Issue, now time.Time) (time.Duration, bool) {
	if item.CreatedAt == nil {
		return 0, false
	}
	return internalage.DurationData(*item.CreatedAt, item.UpdatedAt, item.Status != StatusDone, now)
}

// DurationCaption names what DurationLabel measures for the issue.
func DurationCaption(item Issue) string {
	if item.Status == StatusDone {
		return "Took"
	}
	return "Open for"
}

// DurationLabel renders DurationData, e.g. "3h", or "-" when unknown.
func DurationLabel(item Issue, now time.Time) string {
	d, ok := DurationData(item, now)
	if !ok {
		return "-"
	}
	return ui.FormatDurationShort(d)
}

// CreatedLabel renders the creation time for a list row, e.g. "5m ago".
func CreatedLabel(item Issue, now time.Time) string {
	if item.CreatedAt == nil {
		return PendingLabel
	}
	return ui.FormatTimeAgo(*item.CreatedAt, now)
}
