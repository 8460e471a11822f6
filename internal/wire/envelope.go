// Package wire defines the envelope that carries packed arguments, results and
// exceptions across the remote execution boundary.
//
// Request:  {"packed_args": "<base64>"}
// Response: {"result": "<base64>"} or {"exception": "<base64>"}, never both.
//
// Payload bytes are opaque serializer output; the envelope only makes them
// text safe.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Transport statuses. A synchronous invoke succeeds with StatusOK; a
// fire-and-forget invoke succeeds with StatusAccepted.
const (
	StatusOK       = http.StatusOK
	StatusAccepted = http.StatusAccepted
)

// Invocation types carried by transports that multiplex both primitives on a
// single endpoint. The names match the AWS Lambda invocation types.
const (
	InvocationRequestResponse = "RequestResponse"
	InvocationEvent           = "Event"
)

// MaxEnvelopeBytes bounds request and response bodies (AWS Lambda's synchronous
// payload limit).
const MaxEnvelopeBytes = 6 * 1024 * 1024

var errMalformed = errors.New("malformed envelope")

// ErrMalformed reports whether err came from decoding a malformed envelope.
func ErrMalformed(err error) bool {
	return errors.Is(err, errMalformed)
}

// Request is the dispatch-side to execution-side envelope.
type Request struct {
	PackedArgs string `json:"packed_args"`
}

// NewRequest wraps packed arguments.
func NewRequest(packedArgs []byte) *Request {
	return &Request{PackedArgs: encode(packedArgs)}
}

// Args returns the decoded packed arguments.
func (r *Request) Args() ([]byte, error) {
	b, err := decode(r.PackedArgs)
	if err != nil {
		return nil, fmt.Errorf("%w: packed_args: %v", errMalformed, err)
	}
	return b, nil
}

// DecodeRequest parses a JSON request envelope.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return &req, nil
}

// Response is the execution-side reply. Exactly one field is set.
type Response struct {
	Result    *string `json:"result,omitempty"`
	Exception *string `json:"exception,omitempty"`
}

// NewResponse encodes an outcome.
func NewResponse(out *Outcome) *Response {
	if out.Failed() {
		s := encode(out.Exception)
		return &Response{Exception: &s}
	}
	s := encode(out.Result)
	return &Response{Result: &s}
}

// Outcome validates the response and decodes it back to payload bytes.
func (r *Response) Outcome() (*Outcome, error) {
	switch {
	case r.Result != nil && r.Exception != nil:
		return nil, fmt.Errorf("%w: both result and exception present", errMalformed)
	case r.Exception != nil:
		b, err := decode(*r.Exception)
		if err != nil {
			return nil, fmt.Errorf("%w: exception: %v", errMalformed, err)
		}
		return &Outcome{Exception: nonNil(b)}, nil
	case r.Result != nil:
		b, err := decode(*r.Result)
		if err != nil {
			return nil, fmt.Errorf("%w: result: %v", errMalformed, err)
		}
		return &Outcome{Result: nonNil(b)}, nil
	default:
		return nil, fmt.Errorf("%w: neither result nor exception present", errMalformed)
	}
}

// DecodeResponse parses a JSON response envelope.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", errMalformed)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return &resp, nil
}

// Outcome is the in-process form of a response: serializer bytes for either
// the returned value or the captured exception.
type Outcome struct {
	Result    []byte
	Exception []byte

	// Err is the execution-side error that produced Exception. It is never
	// sent over the wire.
	Err error `json:"-"`
}

// Failed reports whether the exception slot is present.
func (o *Outcome) Failed() bool {
	return o.Exception != nil
}

// ErrorBody is the body sent alongside a function error, in the shape AWS
// Lambda uses for unhandled errors.
type ErrorBody struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorType    string `json:"errorType,omitempty"`
}

// ErrorMessage extracts errorMessage from a function-error body, falling back
// to the raw body.
func ErrorMessage(body []byte) string {
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.ErrorMessage != "" {
		return eb.ErrorMessage
	}
	if len(body) == 0 {
		return "no error message"
	}
	return string(body)
}

func encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
