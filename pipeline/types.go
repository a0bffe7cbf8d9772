// Package pipeline implements the self-querying answer pipeline: candidate
// SPARQL generation, validation, bounded execution, evidence ranking and
// answer synthesis over a schema-profiled triple store.
package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Ontology-Bot/Ontology-Analyzer/llm"
)

// Form is the declared SPARQL query form of a candidate.
type Form string

const (
	FormSelect    Form = "SELECT"
	FormAsk       Form = "ASK"
	FormConstruct Form = "CONSTRUCT"
	FormDescribe  Form = "DESCRIBE"
	FormUnknown   Form = "UNKNOWN"
)

// Status tracks a candidate through its lifecycle:
// generated → validated → executed, or generated → rejected.
type Status string

const (
	StatusGenerated Status = "generated"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
	StatusExecuted  Status = "executed"
)

// Question is one user request. It is never mutated after creation.
type Question struct {
	// Text is the raw user question.
	Text string

	// Model optionally overrides the configured default model.
	Model string

	// History carries prior conversation turns for synthesis context.
	History []llm.Message
}

// CandidateQuery is one machine-proposed SPARQL query. The generator
// creates it; only the validator and executor advance its status.
type CandidateQuery struct {
	// Text is the query text. The validator may rewrite it to inject or
	// clamp a LIMIT clause.
	Text string

	// Form is classified from the leading keyword.
	Form Form

	// Index is the candidate's ordinal in the model's emission order.
	Index int

	// Status is the candidate's lifecycle state.
	Status Status

	// Rejection records why validation failed. Nil unless rejected.
	Rejection *RejectionReason
}

// RejectionKind classifies a validation failure.
type RejectionKind string

const (
	RejectionSyntax RejectionKind = "syntax"
	RejectionForm   RejectionKind = "form"
	RejectionBound  RejectionKind = "bound"
)

// RejectionReason is a terminal, per-candidate validation failure. It is
// recorded for diagnostics and never aborts sibling candidates.
type RejectionReason struct {
	Kind   RejectionKind
	Detail string
}

func (r *RejectionReason) Error() string {
	return fmt.Sprintf("candidate rejected (%s): %s", r.Kind, r.Detail)
}

// Outcome classifies what execution of a candidate produced.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeEmpty      Outcome = "empty"
	OutcomeTimedOut   Outcome = "timed-out"
	OutcomeStoreError Outcome = "store-error"
)

// ExecutionResult holds the bounded result of executing one candidate.
// Immutable after creation.
type ExecutionResult struct {
	Candidate *CandidateQuery

	// Rows holds SELECT solution rows, capped at max_rows.
	Rows []map[string]string

	// Triples holds CONSTRUCT/DESCRIBE result lines, capped at max_triples.
	Triples []string

	// Boolean is set for ASK queries.
	Boolean *bool

	// Elapsed is the wall-clock execution time.
	Elapsed time.Duration

	// Outcome classifies the result.
	Outcome Outcome

	// Err holds the store error text for diagnostics.
	Err string
}

// Size returns the number of rows or triples retained. A bound ASK counts
// as one.
func (r *ExecutionResult) Size() int {
	if r.Boolean != nil {
		return 1
	}
	if len(r.Triples) > 0 {
		return len(r.Triples)
	}
	return len(r.Rows)
}

// RankedEvidence pairs an execution result with its relevance score and
// rank position (0 = best).
type RankedEvidence struct {
	Result *ExecutionResult
	Score  float64
	Rank   int
}

// Answer is the pipeline's sole externally visible output.
type Answer struct {
	// Text is the final natural-language answer.
	Text string `json:"text"`

	// Queries lists the query texts actually used as evidence.
	Queries []string `json:"queries"`

	// Found reports whether any evidence backed the answer.
	Found bool `json:"found"`
}

// formPattern matches the leading query-form keyword, skipping PROLOGUE
// declarations (PREFIX/BASE) that legitimately precede it.
var formPattern = regexp.MustCompile(`(?is)^\s*(?:(?:PREFIX\s+\S+\s+<[^>]*>|BASE\s+<[^>]*>)\s*)*(SELECT|ASK|CONSTRUCT|DESCRIBE)\b`)

// ClassifyForm determines the query form from the leading keyword.
// Unrecognized text classifies as FormUnknown; the validator decides
// whether that is a syntax or a form problem.
func ClassifyForm(query string) Form {
	m := formPattern.FindStringSubmatch(query)
	if m == nil {
		return FormUnknown
	}
	return Form(strings.ToUpper(m[1]))
}

// NormalizeQuery collapses whitespace and case for duplicate detection.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
