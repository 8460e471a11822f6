// Package deploy describes a tasklet application to a deployment target. The
// target itself (packaging, provisioning) is behind Service.
package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/oriys/tasklet/internal/domain"
)

// Policy grants the deployed functions access to a cloud resource.
type Policy struct {
	Effect    string   `json:"effect" yaml:"effect"`
	Actions   []string `json:"actions" yaml:"actions"`
	Resources []string `json:"resources" yaml:"resources"`
}

// Validate checks the fields every target needs.
func (p Policy) Validate() error {
	switch p.Effect {
	case "Allow", "Deny":
	default:
		return fmt.Errorf("%w: policy effect must be Allow or Deny, got %q", domain.ErrConfiguration, p.Effect)
	}
	if len(p.Actions) == 0 || len(p.Resources) == 0 {
		return fmt.Errorf("%w: policy needs at least one action and one resource", domain.ErrConfiguration)
	}
	return nil
}

// Artifact is the packaged user code handed to the target.
type Artifact struct {
	Name string `json:"name" yaml:"name"`
	// Path is a file on disk (binary or zip). Empty for targets that build
	// their own artifact.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// FunctionSpec is one deployable function.
type FunctionSpec struct {
	Address        string   `json:"address" yaml:"address"`
	QualifiedName  string   `json:"qualified_name" yaml:"qualified_name"`
	ResourceName   string   `json:"resource_name" yaml:"resource_name"`
	Serializer     string   `json:"serializer" yaml:"serializer"`
	TimeoutS       int      `json:"timeout_s,omitempty" yaml:"timeout_s,omitempty"`
	Policies       []Policy `json:"policies,omitempty" yaml:"policies,omitempty"`
	Subnets        []string `json:"subnets,omitempty" yaml:"subnets,omitempty"`
	SecurityGroups []string `json:"security_groups,omitempty" yaml:"security_groups,omitempty"`
}

// Service deploys a manifest of functions together with their code.
// Implementations wrap failures with domain.ErrDeployment.
type Service interface {
	Deploy(ctx context.Context, artifact Artifact, requirements []string, manifest []FunctionSpec, env map[string]string, sharedPolicies []Policy) error
}

// ParseRequirements splits a newline separated requirements list, dropping
// blank lines and comments.
func ParseRequirements(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
