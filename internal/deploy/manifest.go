package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/logging"
	"github.com/oriys/tasklet/internal/pkg/digest"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the file ManifestWriter writes into its directory.
const ManifestFile = "manifest.yaml"

// Manifest is the document ManifestWriter produces for external tooling.
type Manifest struct {
	Artifact       string            `yaml:"artifact,omitempty"`
	ArtifactSHA256 string            `yaml:"artifact_sha256,omitempty"`
	Requirements   []string          `yaml:"requirements,omitempty"`
	Environment    map[string]string `yaml:"environment,omitempty"`
	SharedPolicies []Policy          `yaml:"shared_policies,omitempty"`
	Functions      []FunctionSpec    `yaml:"functions"`
}

// ManifestWriter is a Service that writes the manifest and a copy of the
// artifact to Dir instead of provisioning anything.
type ManifestWriter struct {
	Dir string
}

func (m ManifestWriter) Deploy(ctx context.Context, artifact Artifact, requirements []string, manifest []FunctionSpec, env map[string]string, sharedPolicies []Policy) error {
	if m.Dir == "" {
		return fmt.Errorf("%w: manifest directory is required", domain.ErrDeployment)
	}
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeployment, err)
	}

	fns := append([]FunctionSpec(nil), manifest...)
	sort.Slice(fns, func(i, j int) bool { return fns[i].Address < fns[j].Address })

	doc := Manifest{
		Requirements:   requirements,
		Environment:    env,
		SharedPolicies: sharedPolicies,
		Functions:      fns,
	}
	if artifact.Path != "" {
		name := artifact.Name
		if name == "" {
			name = filepath.Base(artifact.Path)
		}
		if err := copyFile(artifact.Path, filepath.Join(m.Dir, name)); err != nil {
			return fmt.Errorf("%w: copy artifact: %v", domain.ErrDeployment, err)
		}
		sum, err := digest.File(artifact.Path)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDeployment, err)
		}
		doc.Artifact = name
		doc.ArtifactSHA256 = sum
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %v", domain.ErrDeployment, err)
	}
	path := filepath.Join(m.Dir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeployment, err)
	}

	logging.Op().Info("manifest written", "path", path, "functions", len(fns))
	return nil
}

// ReadManifest loads a manifest written by ManifestWriter.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var doc Manifest
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &doc, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
