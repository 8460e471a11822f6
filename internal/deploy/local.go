package deploy

import (
	"context"

	"github.com/oriys/tasklet/internal/logging"
)

// Local is the Service of an app using the local executor: nothing leaves the
// process, so there is nothing to deploy.
type Local struct{}

func (Local) Deploy(ctx context.Context, artifact Artifact, requirements []string, manifest []FunctionSpec, env map[string]string, sharedPolicies []Policy) error {
	logging.Op().Info("local backend: nothing to deploy", "functions", len(manifest))
	return nil
}
