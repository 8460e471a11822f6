package wire

// HTTP headers of the invoke endpoint. They follow the AWS Lambda invoke API so
// the same dispatch code can talk to either.
const (
	HeaderInvocationType = "X-Invocation-Type"
	HeaderFunctionError  = "X-Function-Error"
	HeaderRequestID      = "X-Request-Id"
)

// InvokePath is the route an execution-side HTTP server exposes per function.
const InvokePath = "/functions/{address}/invoke"

// FunctionErrorUnhandled marks a failure of the execution machinery itself
// (unknown function, unusable arguments) as opposed to an exception raised by
// the function, which travels inside a normal response.
const FunctionErrorUnhandled = "Unhandled"
