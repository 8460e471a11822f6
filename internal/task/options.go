package task

import (
	"fmt"
	"time"

	"github.com/oriys/tasklet/internal/deploy"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/executor"
	"github.com/oriys/tasklet/internal/serializer"
)

// Options are the per-task settings given to Register.
type Options struct {
	// Name overrides the qualified name derived from the function.
	Name     string
	Instance string
	Side     domain.Side

	Executor   executor.Executor
	Serializer serializer.Serializer

	Timeout        time.Duration
	Policies       []deploy.Policy
	Subnets        []string
	SecurityGroups []string
}

// Option configures one task.
type Option func(*Options)

// WithName sets the qualified name. Use it for closures, whose derived names
// depend on declaration order.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithInstance sets the instance prefix of the addressable name.
func WithInstance(instance string) Option {
	return func(o *Options) {
		o.Instance = instance
	}
}

// WithTaskSide tells the task which side of the boundary its process is on.
func WithTaskSide(side domain.Side) Option {
	return func(o *Options) {
		o.Side = side
	}
}

// WithTaskExecutor binds the task to an executor other than its app's.
func WithTaskExecutor(e executor.Executor) Option {
	return func(o *Options) {
		o.Executor = e
	}
}

// WithTaskSerializer binds the task to a serializer other than its app's.
func WithTaskSerializer(s serializer.Serializer) Option {
	return func(o *Options) {
		o.Serializer = s
	}
}

// WithTimeout bounds one execution. It is applied on the execution side and
// passed to the deployment target.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithPolicies grants the deployed function access beyond the app's shared
// policies.
func WithPolicies(p ...deploy.Policy) Option {
	return func(o *Options) {
		o.Policies = append(o.Policies, p...)
	}
}

// WithVPC places the deployed function in a VPC. Subnets and security groups
// must be given together.
func WithVPC(subnets, securityGroups []string) Option {
	return func(o *Options) {
		o.Subnets = subnets
		o.SecurityGroups = securityGroups
	}
}

func (o *Options) validate() error {
	if (len(o.Subnets) == 0) != (len(o.SecurityGroups) == 0) {
		return fmt.Errorf("%w: VPC needs both subnets and security groups", domain.ErrConfiguration)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", domain.ErrConfiguration)
	}
	for _, p := range o.Policies {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if o.Executor == nil {
		return fmt.Errorf("%w: task has no executor", domain.ErrConfiguration)
	}
	if o.Serializer == nil {
		return fmt.Errorf("%w: task has no serializer", domain.ErrConfiguration)
	}
	return nil
}
