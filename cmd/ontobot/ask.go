package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Ontology-Bot/Ontology-Analyzer/pipeline"
)

func askCmd(flags *globalFlags) *cobra.Command {
	var (
		model      string
		jsonOutput bool
		noStream   bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question over the configured triple store",
		Long: `Ask sends a natural-language question through the full pipeline:
schema profiling, SPARQL candidate generation, parallel execution,
evidence ranking and answer synthesis. The answer streams to stdout
as it is produced unless --json or --no-stream is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}

			p, err := pipeline.New(cfg,
				pipeline.WithLogger(logger),
				pipeline.WithMetrics(pipeline.NewMetrics(prometheus.NewRegistry())))
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			q := pipeline.Question{
				Text:  strings.Join(args, " "),
				Model: model,
			}

			start := time.Now()
			var answer *pipeline.Answer
			if jsonOutput || noStream {
				answer, err = p.Answer(ctx, q)
			} else {
				answer, err = p.AnswerStream(ctx, q, func(fragment string) error {
					_, werr := fmt.Print(fragment)
					return werr
				})
				fmt.Println()
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}

			if noStream {
				fmt.Println(answer.Text)
			}
			if len(answer.Queries) > 0 {
				fmt.Fprintln(os.Stderr)
				fmt.Fprintln(os.Stderr, "Queries used:")
				for _, query := range answer.Queries {
					fmt.Fprintf(os.Stderr, "---\n%s\n", query)
				}
			}
			logger.Debug("Request complete",
				"found", answer.Found,
				"elapsed", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model override for this question")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full answer as JSON")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the complete answer instead of streaming")

	return cmd
}
