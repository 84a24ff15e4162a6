package issue

import (
	"fmt"

	internalstrings "github.com/amonks/issues/internal/strings"
)

// ValidateTitle checks if the title is valid.
func ValidateTitle(title string) error {
	if internalstrings.IsBlank(title) {
		return ErrEmptyTitle
	}
	if len(title) > MaxTitleLength {
		return fmt.Errorf("%w: %d > %d", ErrTitleTooLong, len(title), MaxTitleLength)
	}
	return nil
}

// ValidatePriority checks if the priority is valid.
func ValidatePriority(priority Priority) error {
	if !priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}
	return nil
}

// ValidateStatus checks if the status is valid.
func ValidateStatus(status Status) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return nil
}

// ValidateIssue checks the fields a stored issue must satisfy.
func ValidateIssue(item *Issue) error {
	if item.ID == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrValidation)
	}
	if err := ValidateTitle(item.Title); err != nil {
		return err
	}
	if err := ValidateStatus(item.Status); err != nil {
		return err
	}
	return ValidatePriority(item.Priority)
}
