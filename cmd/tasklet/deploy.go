package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/oriys/tasklet/internal/config"
	"github.com/oriys/tasklet/internal/deploy"
	"github.com/spf13/cobra"
)

func deployCmd() *cobra.Command {
	var (
		outDir       string
		artifactPath string
		requirements string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Write the deployment manifest for the demo tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			app, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			var reqs []string
			if requirements != "" {
				data, err := os.ReadFile(requirements)
				if err != nil {
					return fmt.Errorf("read requirements: %w", err)
				}
				reqs = deploy.ParseRequirements(string(data))
			}

			var svc deploy.Service = deploy.ManifestWriter{Dir: outDir}
			if cfg.Backend == config.BackendLocal {
				svc = deploy.Local{}
			}
			artifact := deploy.Artifact{Name: cfg.Instance, Path: artifactPath}
			if artifactPath != "" {
				artifact.Name = filepath.Base(artifactPath)
			}
			if err := app.Deploy(ctx, svc, artifact, reqs); err != nil {
				return err
			}
			if cfg.Backend != config.BackendLocal {
				fmt.Printf("Manifest written to %s\n", filepath.Join(outDir, deploy.ManifestFile))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "deploy", "Output directory")
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "Built execution-side binary or archive to ship")
	cmd.Flags().StringVar(&requirements, "requirements", "", "Requirements file (one per line, # comments)")

	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the demo tasks and their addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := newApp(context.Background(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tTIMEOUT")
			for _, t := range app.Tasks() {
				timeout := "-"
				if d := t.Options().Timeout; d > 0 {
					timeout = d.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name(), t.Address(), timeout)
			}
			return w.Flush()
		},
	}
}

func namesCmd() *cobra.Command {
	var instance string

	cmd := &cobra.Command{
		Use:   "names <qualified-name>...",
		Short: "Print the function and resource names a qualified name deploys as",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "QUALIFIED\tFUNCTION\tRESOURCE")
			for _, q := range args {
				fmt.Fprintf(w, "%s\t%s\t%s\n", q, deploy.FunctionName(instance, q), deploy.ResourceName(q))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&instance, "instance", "tasklet", "Instance name")

	return cmd
}
