package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var addressPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateAddress enforces the accepted addressable-name format. The format is
// the intersection of what the HTTP route, gRPC metadata, Redis keys and AWS
// Lambda function names accept.
func ValidateAddress(name string) error {
	if name == "" {
		return fmt.Errorf("address is required")
	}
	if len(name) > MaxAddressLen {
		return fmt.Errorf("invalid address %q: longer than %d characters", name, MaxAddressLen)
	}
	if !addressPattern.MatchString(name) {
		return fmt.Errorf("invalid address %q: must match %s", name, addressPattern.String())
	}
	return nil
}

// MaxAddressLen is the longest addressable name a deployment target accepts.
const MaxAddressLen = 64

// ExecutionMode selects one of the four dispatch primitives.
type ExecutionMode string

const (
	// ModeInvoke blocks until the function returns or raises.
	ModeInvoke ExecutionMode = "invoke"
	// ModeInvokeAsync returns immediately, no result channel.
	ModeInvokeAsync ExecutionMode = "invoke_async"
	// ModeQueue runs the call on the executor's single FIFO worker.
	ModeQueue ExecutionMode = "queue"
	// ModeDelay runs the call once a timeout has elapsed.
	ModeDelay ExecutionMode = "delay"
)

func (m ExecutionMode) IsValid() bool {
	switch m {
	case ModeInvoke, ModeInvokeAsync, ModeQueue, ModeDelay:
		return true
	}
	return false
}

// ParseExecutionMode accepts the mode names plus the dashed spellings used on
// the command line ("invoke-async").
func ParseExecutionMode(s string) (ExecutionMode, error) {
	m := ExecutionMode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !m.IsValid() {
		return "", fmt.Errorf("invalid execution mode: %s (valid: invoke, invoke_async, queue, delay)", s)
	}
	return m, nil
}

// Side tags a process as issuing dispatches or as being the remote execution
// target. It is resolved once at process start and never changes.
type Side int

const (
	SideDispatch Side = iota
	SideExecution
)

func (s Side) String() string {
	switch s {
	case SideDispatch:
		return "dispatch"
	case SideExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// SideFromFlag maps the deployment environment flag ("1" inside a deployed
// stack) to a Side.
func SideFromFlag(v string) Side {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return SideExecution
	default:
		return SideDispatch
	}
}

// InvocationRecord is one handled request on the execution side.
type InvocationRecord struct {
	RequestID  string        `json:"request_id"`
	TraceID    string        `json:"trace_id,omitempty"`
	Address    string        `json:"address"`
	Mode       ExecutionMode `json:"mode"`
	DurationMs int64         `json:"duration_ms"`
	Raised     bool          `json:"raised"`
	Error      string        `json:"error,omitempty"`
	At         time.Time     `json:"at"`
}
