package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newValidateCommand(root *rootOptions) *cobra.Command {
	var printConfig bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration without starting the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPaths)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			if printConfig {
				_, err := fmt.Fprintln(out, cfg.String())
				return err
			}

			fmt.Fprintf(out, "configuration valid\n")
			fmt.Fprintf(out, "  listen:    %s\n", cfg.HTTP.Listen)
			fmt.Fprintf(out, "  workflows: %s\n", strings.Join(cfg.WorkflowNames(), ", "))
			fmt.Fprintf(out, "  routes:    %d\n", len(cfg.Routes))
			fmt.Fprintf(out, "  bridges:   %d\n", len(cfg.Bridges))
			if cfg.NATS.Enabled() {
				fmt.Fprintf(out, "  nats:      %s\n", cfg.NATS.URL())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&printConfig, "print", false, "print the merged configuration with secrets masked")
	return cmd
}
