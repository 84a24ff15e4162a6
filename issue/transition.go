package issue

import "fmt"

// TransitionError reports a status change that is not allowed.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move directly from %s to %s", e.From.DisplayName(), e.To.DisplayName())
}

// Is makes errors.Is match ErrForbiddenTransition and ErrValidation.
func (e *TransitionError) Is(target error) bool {
	return target == ErrForbiddenTransition || target == ErrValidation
}

// ValidateTransition checks a requested status change. It returns requested
// when the change is allowed and current otherwise.
//
// Every edge is allowed except open to done; work has to be started first.
func ValidateTransition(current, requested Status) (Status, error) {
	if err := ValidateStatus(current); err != nil {
		return current, err
	}
	if err := ValidateStatus(requested); err != nil {
		return current, err
	}
	if current == StatusOpen && requested == StatusDone {
		return current, &TransitionError{From: current, To: requested}
	}
	return requested, nil
}

// AllowedTransitions lists the statuses current may move to, including
// itself, in ValidStatuses order.
func AllowedTransitions(current Status) []Status {
	allowed := make([]Status, 0, len(ValidStatuses()))
	for _, status := range ValidStatuses() {
		if _, err := ValidateTransition(current, status); err == nil {
			allowed = append(allowed, status)
		}
	}
	return allowed
}
