package main

import (
	"fmt"
	"os"

	"github.com/oriys/tasklet/internal/config"
	"github.com/oriys/tasklet/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tasklet",
		Short:         "Tasklet - dispatch Go functions locally or to a remote execution side",
		Long:          "A task dispatch CLI: serve the demo tasks, invoke them over any backend, and write deployment manifests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(
		serveCmd(),
		invokeCmd(),
		listCmd(),
		deployCmd(),
		namesCmd(),
		failuresCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config and applies the logging flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Observability.LogFormat = logFormat
	}
	logging.InitStructured(cfg.Observability.LogFormat, cfg.Observability.LogLevel)
	return cfg, nil
}
