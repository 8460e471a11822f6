package router

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/oriys/tasklet/internal/wire"
)

// LambdaHandlerFunc is the handler shape aws-lambda-go's lambda.Start accepts.
type LambdaHandlerFunc func(ctx context.Context, req wire.Request) (*wire.Response, error)

// LambdaHandler returns the entry point of the Lambda function deployed for
// address. Each Lambda function serves exactly one task, so the address is
// bound here rather than read from the event.
//
// A returned error becomes a Lambda function error, which the Lambda
// transport reports to the caller as ErrInternal.
func (r *Router) LambdaHandler(address string) (LambdaHandlerFunc, error) {
	if _, ok := r.tasks[address]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, address)
	}
	return func(ctx context.Context, req wire.Request) (*wire.Response, error) {
		c := call{surface: "lambda", address: address}
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			c.requestID = lc.AwsRequestID
		}
		return r.serveInvoke(ctx, c, &req)
	}, nil
}
