package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Ontology-Bot/Ontology-Analyzer/sparql"
)

// Executor runs validated candidates against the store under a hard
// per-query timeout and row/triple caps.
type Executor struct {
	store      *sparql.Client
	timeout    time.Duration
	maxRows    int
	maxTriples int
	logger     *slog.Logger
}

// NewExecutor creates an executor over the given store client.
func NewExecutor(store *sparql.Client, timeout time.Duration, maxRows, maxTriples int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:      store,
		timeout:    timeout,
		maxRows:    maxRows,
		maxTriples: maxTriples,
		logger:     logger,
	}
}

// Execute runs one validated candidate. All failure modes are recorded in
// the result, never returned as an error: a failing candidate must not
// block or cancel its siblings. Store errors are not retried; the fault is
// either structural or environmental, and a repeat would not change it.
func (e *Executor) Execute(ctx context.Context, c *CandidateQuery) *ExecutionResult {
	execCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	result := &ExecutionResult{Candidate: c}

	switch c.Form {
	case FormConstruct, FormDescribe:
		turtle, err := e.store.Construct(execCtx, c.Text)
		result.Elapsed = time.Since(start)
		if err != nil {
			e.classify(result, err)
			break
		}
		triples := sparql.TripleLines(turtle)
		if len(triples) > e.maxTriples {
			triples = triples[:e.maxTriples]
		}
		result.Triples = triples
		if len(triples) == 0 {
			result.Outcome = OutcomeEmpty
		} else {
			result.Outcome = OutcomeSuccess
		}

	default: // SELECT, ASK
		res, err := e.store.Query(execCtx, c.Text)
		result.Elapsed = time.Since(start)
		if err != nil {
			e.classify(result, err)
			break
		}
		if res.IsAsk() {
			result.Boolean = res.Boolean
			// A definite false answers the query but supports nothing.
			if *res.Boolean {
				result.Outcome = OutcomeSuccess
			} else {
				result.Outcome = OutcomeEmpty
			}
			break
		}
		rows := make([]map[string]string, 0, min(len(res.Bindings), e.maxRows))
		for i := range res.Bindings {
			if len(rows) >= e.maxRows {
				break
			}
			rows = append(rows, res.Row(i))
		}
		result.Rows = rows
		if len(rows) == 0 {
			result.Outcome = OutcomeEmpty
		} else {
			result.Outcome = OutcomeSuccess
		}
	}

	c.Status = StatusExecuted

	e.logger.Debug("Candidate executed",
		"index", c.Index,
		"form", c.Form,
		"outcome", result.Outcome,
		"size", result.Size(),
		"elapsed", result.Elapsed)

	return result
}

// classify maps a store call failure to a terminal outcome. Timed-out
// results retain no partial rows: a truncated result set would bias
// ranking toward whatever happened to arrive first.
func (e *Executor) classify(result *ExecutionResult, err error) {
	result.Err = err.Error()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		result.Outcome = OutcomeTimedOut
		return
	}
	result.Outcome = OutcomeStoreError
}

// Preview renders a compact textual preview of a result for evidence
// packing: JSON lines for rows, raw lines for triples, the boolean for ASK.
func Preview(r *ExecutionResult) string {
	if r.Boolean != nil {
		if *r.Boolean {
			return "ASK result: true"
		}
		return "ASK result: false"
	}
	if len(r.Triples) > 0 {
		return strings.Join(r.Triples, "\n")
	}
	if len(r.Rows) == 0 {
		return "No rows returned"
	}

	lines := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		data, err := json.Marshal(row)
		if err != nil {
			continue
		}
		lines = append(lines, string(data))
	}
	return strings.Join(lines, "\n")
}
