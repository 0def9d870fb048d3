package circulation

import "errors"

// Validation failures surfaced to callers. All are business-rule errors
// raised before any state changes; none is retryable without new
// information. Wrapped with fmt.Errorf("...: %w", Err...) so callers match
// them with errors.Is.
var (
	// ErrMemberNotFound means the referenced member key does not exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrTitleNotFound means the referenced title key does not exist.
	ErrTitleNotFound = errors.New("title not found")

	// ErrIneligibleBorrower means the member is not Active or already holds
	// as many open loans as their class allows.
	ErrIneligibleBorrower = errors.New("member is not eligible to borrow")

	// ErrTitleUnavailable means the title is already borrowed.
	ErrTitleUnavailable = errors.New("title is not available")

	// ErrTitleCurrentlyAvailable means the title is on the shelf; borrowing,
	// not reserving, is the correct action.
	ErrTitleCurrentlyAvailable = errors.New("title is available for immediate borrowing")

	// ErrDuplicateReservation means the member already has an active
	// reservation for the title.
	ErrDuplicateReservation = errors.New("member already has an active reservation for this title")

	// ErrDuplicateKey means a record with the same key already exists.
	ErrDuplicateKey = errors.New("key already exists")

	// ErrBadCredentials means the password did not match the member's hash.
	ErrBadCredentials = errors.New("invalid credentials")
)
