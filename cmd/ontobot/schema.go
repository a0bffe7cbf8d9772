package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ontology-Bot/Ontology-Analyzer/schema"
	"github.com/Ontology-Bot/Ontology-Analyzer/sparql"
)

func schemaCmd(flags *globalFlags) *cobra.Command {
	var (
		refresh bool
		asTTL   bool
	)

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the store's schema profile",
		Long: `Schema introspects the configured triple store and prints the
compact schema profile the planner sees: classes with instance counts,
properties with domain and range, and named graphs. With --ttl it
prints the raw schema triples as Turtle instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}

			store := sparql.NewClient(cfg.SPARQL.BaseURL,
				sparql.WithTimeout(time.Duration(cfg.SPARQL.TimeoutSec)*time.Second),
				sparql.WithLogger(logger))
			profiler := schema.NewProfiler(store,
				schema.WithCacheTTL(cfg.SPARQL.SchemaCacheTTL),
				schema.WithSchemaGraph(cfg.SPARQL.SchemaGraphURI, cfg.SPARQL.SchemaTTLMaxChars),
				schema.WithLogger(logger))

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if asTTL {
				ttl, err := profiler.SchemaTTL(ctx)
				if err != nil {
					return fmt.Errorf("fetch schema TTL: %w", err)
				}
				fmt.Println(ttl)
				return nil
			}

			profile, err := profiler.Profile(ctx, refresh)
			if err != nil {
				return fmt.Errorf("profile schema: %w", err)
			}
			if profile.IsEmpty() {
				fmt.Println("Schema profile is empty; is the store reachable and populated?")
				if profile.Warning != "" {
					fmt.Printf("Warning: %s\n", profile.Warning)
				}
				return nil
			}
			fmt.Println(profile.Summary())
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the cache and rebuild the profile")
	cmd.Flags().BoolVar(&asTTL, "ttl", false, "Print schema triples as Turtle")

	return cmd
}
