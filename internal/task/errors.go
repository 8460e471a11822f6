package task

import (
	"fmt"
	"runtime/debug"

	"github.com/oriys/tasklet/internal/serializer"
)

// PanicError is raised in place of a panic inside a task function.
type PanicError struct {
	Value string
	Stack string
}

func newPanicError(r any) *PanicError {
	return &PanicError{Value: fmt.Sprint(r), Stack: string(debug.Stack())}
}

func (e *PanicError) Error() string { return "panic: " + e.Value }
func (e *PanicError) Args() []any   { return []any{e.Value} }

func init() {
	serializer.Register(&PanicError{})
}
