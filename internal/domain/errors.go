package domain

import "errors"

// Error taxonomy shared by every layer. Surfaced errors wrap exactly one of
// these with %w so callers can branch with errors.Is.
var (
	// ErrConfiguration is returned when a local dispatch is attempted inside an
	// execution-side process, or when task options contradict each other.
	ErrConfiguration = errors.New("configuration error")
	// ErrSerialization is returned at pack time when the bound serializer
	// cannot represent a value.
	ErrSerialization = errors.New("serialization error")
	// ErrInternal covers transport failures: non-success status, malformed
	// envelope, missing response.
	ErrInternal = errors.New("internal error")
	// ErrNotSupported is returned by executor variants that cannot offer a
	// dispatch primitive.
	ErrNotSupported = errors.New("not supported")
	// ErrDeployment is returned by the deployment collaborator.
	ErrDeployment = errors.New("deployment error")
)
