package issue

import "errors"

// ErrValidation is the root of every input validation failure. Use
// errors.Is(err, ErrValidation) to tell bad input apart from store failures.
var ErrValidation = errors.New("validation failed")

var (
	// ErrEmptyTitle is returned when an issue title is blank.
	ErrEmptyTitle = validationError("title cannot be empty")

	// ErrTitleTooLong is returned when a title exceeds MaxTitleLength.
	ErrTitleTooLong = validationError("title exceeds maximum length")

	// ErrInvalidStatus is returned when an unknown status is provided.
	ErrInvalidStatus = validationError("invalid status")

	// ErrInvalidPriority is returned when an unknown priority is provided.
	ErrInvalidPriority = validationError("invalid priority")

	// ErrForbiddenTransition is returned for status changes that are not allowed.
	ErrForbiddenTransition = validationError("forbidden status transition")
)

var (
	// ErrIssueNotFound is returned when no issue has the given ID.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrAmbiguousIssueIDPrefix is returned when an ID prefix matches several issues.
	ErrAmbiguousIssueIDPrefix = errors.New("ambiguous issue ID prefix")
)

func validationError(msg string) error {
	return &sentinel{msg: msg}
}

type sentinel struct {
	msg string
}

func (e *sentinel) Error() string { return e.msg }

func (e *sentinel) Is(target error) bool { return target == ErrValidation }
