package issue

import (
	"fmt"
	"strings"
)

// NewIssue holds the caller-supplied fields for creating an issue. The store
// fills in ID, CreatedBy and the timestamps.
type NewIssue struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	// Status defaults to open.
	Status     Status `json:"status,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// Normalize trims text fields, parses enum spellings, applies defaults and
// validates the result.
func (in NewIssue) Normalize() (NewIssue, error) {
	out := in
	out.Title = strings.TrimSpace(in.Title)
	out.AssignedTo = strings.TrimSpace(in.AssignedTo)
	if err := ValidateTitle(out.Title); err != nil {
		return in, err
	}

	if in.Priority == "" {
		out.Priority = DefaultPriority
	} else {
		priority, err := ParsePriority(string(in.Priority))
		if err != nil {
			return in, err
		}
		out.Priority = priority
	}

	if in.Status == "" {
		out.Status = StatusOpen
	} else {
		status, err := ParseStatus(string(in.Status))
		if err != nil {
			return in, err
		}
		out.Status = status
	}

	return out, nil
}

// Patch describes a partial update. Nil fields are left unchanged.
// CreatedBy is deliberately absent.
type Patch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	// AssignedTo set to "" unassigns.
	AssignedTo *string `json:"assigned_to,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Status == nil && p.AssignedTo == nil
}

// Apply returns item with the patch applied. Status changes must pass
// ValidateTransition.
func (p Patch) Apply(item Issue) (Issue, error) {
	out := item
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if err := ValidateTitle(title); err != nil {
			return item, err
		}
		out.Title = title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Priority != nil {
		priority, err := ParsePriority(string(*p.Priority))
		if err != nil {
			return item, err
		}
		out.Priority = priority
	}
	if p.Status != nil {
		requested, err := ParseStatus(string(*p.Status))
		if err != nil {
			return item, err
		}
		next, err := ValidateTransition(item.Status, requested)
		if err != nil {
			return item, fmt.Errorf("issue %s: %w", item.ID, err)
		}
		out.Status = next
	}
	if p.AssignedTo != nil {
		out.AssignedTo = strings.TrimSpace(*p.AssignedTo)
	}
	return out, nil
}

// StringPtr returns a pointer to the provided string.
func StringPtr(value string) *string {
	return &value
}

// StatusPtr returns a pointer to the provided status.
func StatusPtr(status Status) *Status {
	return &status
}

// PriorityPtr returns a pointer to the provided priority.
func PriorityPtr(priority Priority) *Priority {
	return &priority
}
