// Package issue holds the issue tracker's domain model and the logic that
// runs over it without touching storage.
//
// The public API is small:
//   - FindSimilar warns about probable duplicate titles
//   - ValidateTransition gates status changes
//   - Filter and Visible derive what a list view shows from a Snapshot
package issue

import (
	"strings"

	"github.com/amonks/issues/internal/validation"
)

// Status represents where an issue is in its lifecycle.
type Status string

const (
	// StatusOpen indicates the issue has not been started.
	StatusOpen Status = "open"

	// StatusInProgress indicates someone is working on the issue.
	StatusInProgress Status = "in_progress"

	// StatusDone indicates the issue is finished.
	StatusDone Status = "done"
)

// ValidStatuses returns all valid status values in display order.
func ValidStatuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusDone}
}

// IsValid returns true if the status is a known valid value.
func (s Status) IsValid() bool {
	for _, valid := range ValidStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// DisplayName returns the human-facing label, e.g. "In Progress".
func (s Status) DisplayName() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "In Progress"
	case StatusDone:
		return "Done"
	default:
		return string(s)
	}
}

// ParseStatus accepts stored values and display spellings, ignoring case.
func ParseStatus(value string) (Status, error) {
	switch normalizeEnum(value) {
	case "open":
		return StatusOpen, nil
	case "inprogress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	}
	return "", validation.FormatInvalidValueError(ErrInvalidStatus, Status(value), ValidStatuses())
}

// Priority represents how urgent an issue is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium" // default
	PriorityHigh   Priority = "high"
)

// DefaultPriority is used when an issue is created without one.
const DefaultPriority = PriorityMedium

// ValidPriorities returns all valid priority values from lowest to highest.
func ValidPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

// IsValid returns true if the priority is a known valid value.
func (p Priority) IsValid() bool {
	for _, valid := range ValidPriorities() {
		if p == valid {
			return true
		}
	}
	return false
}

// DisplayName returns the human-facing label, e.g. "High".
func (p Priority) DisplayName() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	default:
		return string(p)
	}
}

// ParsePriority accepts stored values and display spellings, ignoring case.
func ParsePriority(value string) (Priority, error) {
	switch normalizeEnum(value) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return "", validation.FormatInvalidValueError(ErrInvalidPriority, Priority(value), ValidPriorities())
}

// MaxTitleLength is the maximum allowed length for an issue title, in bytes.
const MaxTitleLength = 500

// normalizeEnum folds "In Progress", "in-progress" and "in_progress" together.
func normalizeEnum(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(value)
}
