package wire

import "encoding/json"

// DefaultRedisPrefix namespaces every key the Redis transport touches.
const DefaultRedisPrefix = "tasklet:"

// RedisMessage is pushed onto a function's request list.
type RedisMessage struct {
	ID             string   `json:"id"`
	InvocationType string   `json:"invocation_type"`
	ReplyTo        string   `json:"reply_to,omitempty"`
	Request        *Request `json:"request"`
	TraceParent    string   `json:"traceparent,omitempty"`
	TraceState     string   `json:"tracestate,omitempty"`
}

// RedisReply is pushed onto the reply list of a synchronous request.
type RedisReply struct {
	Status        int             `json:"status"`
	FunctionError string          `json:"function_error,omitempty"`
	Body          json.RawMessage `json:"body,omitempty"`
}

// RequestKey is the list a function's execution side pops requests from.
func RequestKey(prefix, address string) string {
	return prefix + "fn:" + address
}

// ReplyKey is the list a single synchronous request waits on.
func ReplyKey(prefix, id string) string {
	return prefix + "reply:" + id
}
