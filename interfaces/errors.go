package interfaces

import "errors"

var (
	// ErrNotFound is returned when a document does not exist, or when a
	// conditional update found nothing matching its predicate.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a create collides with an existing natural id.
	ErrConflict = errors.New("conflict")

	// ErrVersionMismatch is returned when the document exists under a version
	// the caller did not present.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrPreconditionMissing is returned when a mutating request carries no
	// version token at all.
	ErrPreconditionMissing = errors.New("precondition required")

	// ErrStatusPrecondition is returned when the lifecycle status expected by
	// the caller did not hold. Callers may re-read and retry.
	ErrStatusPrecondition = errors.New("unexpected instance status")

	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrProviderUnreachable is returned when a provider webhook timed out or
	// failed at the transport level.
	ErrProviderUnreachable = errors.New("provider unreachable")

	// ErrProviderRejected is returned when a provider webhook answered with a
	// non-2xx status.
	ErrProviderRejected = errors.New("provider rejected the call")
)
