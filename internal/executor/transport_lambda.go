package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/wire"
)

// LambdaAPI is the part of the AWS Lambda client the transport uses.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaSettings selects the AWS account and region.
type LambdaSettings struct {
	Region          string
	Profile         string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// LambdaTransport invokes AWS Lambda functions directly.
type LambdaTransport struct {
	client LambdaAPI
}

// NewLambdaTransport wraps an existing client.
func NewLambdaTransport(client LambdaAPI) *LambdaTransport {
	return &LambdaTransport{client: client}
}

// NewLambdaTransportFromSettings builds a client from the default AWS
// credential chain, narrowed by s.
func NewLambdaTransportFromSettings(ctx context.Context, s LambdaSettings) (*LambdaTransport, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if s.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(s.Region))
	}
	if s.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(s.Profile))
	}
	if s.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := lambda.NewFromConfig(cfg, func(o *lambda.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
		}
	})
	return &LambdaTransport{client: client}, nil
}

func (t *LambdaTransport) Name() string { return "lambda" }

func (t *LambdaTransport) Send(ctx context.Context, address string, req *wire.Request, mode domain.ExecutionMode) (*Reply, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	invocationType := types.InvocationTypeRequestResponse
	if mode == domain.ModeInvokeAsync {
		invocationType = types.InvocationTypeEvent
	}

	out, err := t.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(address),
		InvocationType: invocationType,
		Payload:        payload,
	})
	if err != nil {
		return nil, err
	}

	return &Reply{
		Status:        int(out.StatusCode),
		FunctionError: aws.ToString(out.FunctionError),
		Body:          out.Payload,
	}, nil
}

func (t *LambdaTransport) Close() error { return nil }
