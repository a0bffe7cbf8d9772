// Package main provides the ontobot binary entry point.
// Ontobot answers natural-language questions over an RDF triple store by
// generating, validating and executing SPARQL query candidates.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	// Register LLM providers via init()
	_ "github.com/Ontology-Bot/Ontology-Analyzer/llm/providers"

	"github.com/spf13/cobra"

	"github.com/Ontology-Bot/Ontology-Analyzer/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ontobot"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Question answering over RDF triple stores",
		Long: `Ontobot answers natural-language questions over an RDF triple store.

It profiles the store's schema, asks an LLM for candidate SPARQL queries,
validates and executes them in parallel, ranks the evidence, and
synthesizes a grounded answer that cites the queries it used.

No query ever modifies the store: only SELECT, ASK, CONSTRUCT and
(optionally) DESCRIBE forms are executed.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(askCmd(flags))
	cmd.AddCommand(schemaCmd(flags))
	cmd.AddCommand(modelsCmd(flags))
	cmd.AddCommand(configCmd(flags))

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

// setup configures logging and loads layered configuration. Commands
// that run against the store or the LLM endpoint go through here.
func setup(flags *globalFlags) (*config.Config, *slog.Logger, error) {
	logger := newLogger(flags.logLevel)

	loader := config.NewLoader(logger)
	cfg, err := loader.Load(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logger, nil
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
