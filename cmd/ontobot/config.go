package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ontology-Bot/Ontology-Analyzer/config"
)

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ontobot configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after all layers",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags.logLevel)
			loader := config.NewLoader(logger)
			cfg, err := loader.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// Never print credentials.
			cfg.LLM.APIKey = redact(cfg.LLM.APIKey)
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags.logLevel)
			loader := config.NewLoader(logger)
			if err := loader.EnsureUserConfig(); err != nil {
				return fmt.Errorf("create user config: %w", err)
			}
			return nil
		},
	})

	return cmd
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
