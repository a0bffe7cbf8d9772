package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ontology-Bot/Ontology-Analyzer/llm"
)

func modelsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models available at the configured LLM endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}

			client := llm.NewClient(llm.Endpoint{
				Provider: cfg.LLM.Provider,
				BaseURL:  cfg.LLM.BaseURL,
				APIKey:   cfg.LLM.APIKey,
				Model:    cfg.LLM.DefaultModel,
			}, llm.WithLogger(logger))

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			models, err := client.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}
			if len(models) == 0 {
				fmt.Println("No models reported by the endpoint.")
				return nil
			}
			for _, m := range models {
				if m.Name != "" && m.Name != m.ID {
					fmt.Printf("%s\t%s\n", m.ID, m.Name)
					continue
				}
				fmt.Println(m.ID)
			}
			return nil
		},
	}
	return cmd
}
