package bridge

import "errors"

// ErrRemote matches every *RemoteError with errors.Is.
var ErrRemote = errors.New("remote exception")

// RemoteError stands in for an error raised by task code on the other side of
// a structural serializer.
type RemoteError struct {
	// Exception is the original type name, e.g. "ValueError".
	Exception string
	// ExceptionFQN is the package-qualified type name.
	ExceptionFQN string
	// Args are the values the original error was built from.
	Args []any

	str string
}

// NewRemoteError builds the proxy for d.
func NewRemoteError(d Descriptor) *RemoteError {
	args := d.ExceptionArgs
	if args == nil {
		args = []any{}
	}
	return &RemoteError{
		Exception:    d.Exception,
		ExceptionFQN: d.ExceptionFQN,
		Args:         args,
		str:          d.ExceptionStr,
	}
}

// Error returns the original error's message unchanged.
func (e *RemoteError) Error() string {
	return e.str
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}

// Descriptor returns the structural form of the proxy.
func (e *RemoteError) Descriptor() Descriptor {
	return Descriptor{
		Exception:     e.Exception,
		ExceptionFQN:  e.ExceptionFQN,
		ExceptionArgs: e.Args,
		ExceptionStr:  e.str,
	}
}
