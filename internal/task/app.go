package task

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"sync"

	"github.com/oriys/tasklet/internal/config"
	"github.com/oriys/tasklet/internal/deploy"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/executor"
	"github.com/oriys/tasklet/internal/serializer"
)

// App groups the tasks of one deployable instance under a default executor
// and serializer.
type App struct {
	instance string
	side     domain.Side
	exec     executor.Executor
	ser      serializer.Serializer

	mu       sync.RWMutex
	tasks    map[string]*Task
	order    []*Task
	env      map[string]string
	policies []deploy.Policy
}

// AppOption configures an App.
type AppOption func(*App)

// WithAppInstance names the deployed instance. It prefixes every addressable
// name.
func WithAppInstance(instance string) AppOption {
	return func(a *App) {
		a.instance = instance
	}
}

// WithSide sets the side of the boundary this process is on.
func WithSide(side domain.Side) AppOption {
	return func(a *App) {
		a.side = side
	}
}

// WithExecutor sets the default executor. Without it the app runs tasks on a
// LocalExecutor.
func WithExecutor(e executor.Executor) AppOption {
	return func(a *App) {
		a.exec = e
	}
}

// WithSerializer sets the default serializer. Without it the app uses JSON.
func WithSerializer(s serializer.Serializer) AppOption {
	return func(a *App) {
		a.ser = s
	}
}

// New returns an App. The defaults are instance "tasklet", the dispatch side,
// a local executor and the JSON serializer.
func New(opts ...AppOption) *App {
	a := &App{
		instance: DefaultInstance,
		side:     domain.SideDispatch,
		tasks:    make(map[string]*Task),
		env:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.exec == nil {
		a.exec = executor.NewLocal(a.side)
	}
	if a.ser == nil {
		a.ser = serializer.JSON()
	}
	return a
}

// Register binds fn under the app's defaults. Two tasks with the same
// addressable name are rejected.
func (a *App) Register(fn Func, opts ...Option) (*Task, error) {
	o := Options{
		Instance:   a.instance,
		Side:       a.side,
		Executor:   a.exec,
		Serializer: a.ser,
	}
	for _, opt := range opts {
		opt(&o)
	}
	t, err := newTask(fn, o)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.tasks[t.address]; ok {
		return nil, fmt.Errorf("%w: %s and %s share address %s", domain.ErrConfiguration, prev.name, t.name, t.address)
	}
	a.tasks[t.address] = t
	a.order = append(a.order, t)
	return t, nil
}

// MustRegister is Register for package-level task variables. It panics on
// error.
func (a *App) MustRegister(fn Func, opts ...Option) *Task {
	t, err := a.Register(fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Tasks returns the registered tasks in registration order.
func (a *App) Tasks() []*Task {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*Task(nil), a.order...)
}

// Lookup finds a task by addressable name.
func (a *App) Lookup(address string) (*Task, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tasks[address]
	return t, ok
}

// Instance returns the instance name.
func (a *App) Instance() string { return a.instance }

// Side returns the side this app was built for.
func (a *App) Side() domain.Side { return a.side }

// IsLocal reports whether the default executor is local.
func (a *App) IsLocal() bool { return a.exec.Kind() == executor.KindLocal }

// IsExecutionSide reports whether this process is a deployed execution side.
func (a *App) IsExecutionSide() bool { return a.side == domain.SideExecution }

// AddEnvironment sets a variable in every deployed function's environment.
func (a *App) AddEnvironment(key, value string) {
	a.mu.Lock()
	a.env[key] = value
	a.mu.Unlock()
}

// AddPolicy grants every deployed function p.
func (a *App) AddPolicy(p deploy.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.policies = append(a.policies, p)
	a.mu.Unlock()
	return nil
}

// Manifest describes every registered task for a deployment target.
func (a *App) Manifest() []deploy.FunctionSpec {
	tasks := a.Tasks()
	specs := make([]deploy.FunctionSpec, 0, len(tasks))
	for _, t := range tasks {
		specs = append(specs, deploy.FunctionSpec{
			Address:        t.address,
			QualifiedName:  t.name,
			ResourceName:   deploy.ResourceName(t.name),
			Serializer:     t.ser.Name(),
			TimeoutS:       int(t.opts.Timeout.Seconds()),
			Policies:       t.opts.Policies,
			Subnets:        t.opts.Subnets,
			SecurityGroups: t.opts.SecurityGroups,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Address < specs[j].Address })
	return specs
}

// Environment returns the deployed environment: the user's variables plus the
// flag that marks the process as the execution side.
func (a *App) Environment() map[string]string {
	a.mu.RLock()
	env := maps.Clone(a.env)
	a.mu.RUnlock()
	env[config.InCloudEnv] = "1"
	return env
}

// Deploy hands the app to svc.
func (a *App) Deploy(ctx context.Context, svc deploy.Service, artifact deploy.Artifact, requirements []string) error {
	a.mu.RLock()
	policies := append([]deploy.Policy(nil), a.policies...)
	a.mu.RUnlock()

	if artifact.Name == "" {
		artifact.Name = a.instance
	}
	if err := svc.Deploy(ctx, artifact, requirements, a.Manifest(), a.Environment(), policies); err != nil {
		return fmt.Errorf("deploy %s: %w", a.instance, err)
	}
	return nil
}

// Close releases the default executor, draining a local queue.
func (a *App) Close() error {
	if c, ok := a.exec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
