package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360/exchangegate/config"
)

type rootOptions struct {
	configPaths []string
	logLevel    string
	logFormat   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "HTTP exchange gateway for workflow pipelines",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, serveOptions{})
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringSliceVarP(&opts.configPaths, "config", "c", getEnvList("EXCHANGEGATE_CONFIG"),
		"configuration file (JSON or YAML); repeat to layer overrides (env: EXCHANGEGATE_CONFIG)")
	flags.StringVar(&opts.logLevel, "log-level", getEnv("EXCHANGEGATE_LOG_LEVEL", "info"),
		"log level: debug, info, warn, error (env: EXCHANGEGATE_LOG_LEVEL)")
	flags.StringVar(&opts.logFormat, "log-format", getEnv("EXCHANGEGATE_LOG_FORMAT", "json"),
		"log format: json or text (env: EXCHANGEGATE_LOG_FORMAT)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// loadConfig merges every config layer onto the defaults and validates the
// result. With no layers the defaults and environment alone must be valid.
func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(true)
	for _, path := range paths {
		loader.AddLayer(path)
	}
	return loader.Load()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
