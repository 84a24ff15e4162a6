package issue

import (
	"slices"
	"strings"
)

// FilterAll selects every value of a field.
const FilterAll = "all"

// StatusFilter is FilterAll or a Status.
type StatusFilter string

// PriorityFilter is FilterAll or a Priority.
type PriorityFilter string

const (
	AllStatuses   StatusFilter   = FilterAll
	AllPriorities PriorityFilter = FilterAll
)

// ParseStatusFilter accepts "", "all", or anything ParseStatus accepts.
func ParseStatusFilter(value string) (StatusFilter, error) {
	if isAll(value) {
		return AllStatuses, nil
	}
	status, err := ParseStatus(value)
	if err != nil {
		return "", err
	}
	return StatusFilter(status), nil
}

// ParsePriorityFilter accepts "", "all", or anything ParsePriority accepts.
func ParsePriorityFilter(value string) (PriorityFilter, error) {
	if isAll(value) {
		return AllPriorities, nil
	}
	priority, err := ParsePriority(value)
	if err != nil {
		return "", err
	}
	return PriorityFilter(priority), nil
}

// Filter selects issues by status and priority. The zero value matches
// everything.
type Filter struct {
	Status   StatusFilter   `json:"status,omitempty"`
	Priority PriorityFilter `json:"priority,omitempty"`
}

// Matches reports whether item passes both selectors.
func (f Filter) Matches(item Issue) bool {
	if !isAll(string(f.Status)) && item.Status != Status(f.Status) {
		return false
	}
	if !isAll(string(f.Priority)) && item.Priority != Priority(f.Priority) {
		return false
	}
	return true
}

// Visible returns the issues matching f, newest first. Issues still waiting
// on a creation time come before everything else, and ties keep snapshot
// order. The snapshot slice is not modified.
func Visible(snapshot []Issue, f Filter) []Issue {
	visible := make([]Issue, 0, len(snapshot))
	for _, item := range snapshot {
		if f.Matches(item) {
			visible = append(visible, item)
		}
	}
	slices.SortStableFunc(visible, compareNewestFirst)
	return visible
}

func compareNewestFirst(a, b Issue) int {
	switch {
	case a.CreatedAt == nil && b.CreatedAt == nil:
		return 0
	case a.CreatedAt == nil:
		return -1
	case b.CreatedAt == nil:
		return 1
	}
	return b.CreatedAt.Compare(*a.CreatedAt)
}

func isAll(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || strings.EqualFold(value, FilterAll)
}
