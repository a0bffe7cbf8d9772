package pipeline_test

import (
	"testing"

	"github.com/Ontology-Bot/Ontology-Analyzer/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRanker() *pipeline.Ranker {
	return &pipeline.Ranker{MaxRows: 100, MaxTriples: 30}
}

func selectResult(index, rows int) *pipeline.ExecutionResult {
	outcome := pipeline.OutcomeSuccess
	if rows == 0 {
		outcome = pipeline.OutcomeEmpty
	}
	result := &pipeline.ExecutionResult{
		Candidate: &pipeline.CandidateQuery{
			Text:   "SELECT ?s WHERE { ?s ?p ?o }",
			Form:   pipeline.FormSelect,
			Index:  index,
			Status: pipeline.StatusExecuted,
		},
		Outcome: outcome,
	}
	for i := 0; i < rows; i++ {
		result.Rows = append(result.Rows, map[string]string{"s": "http://example.org/x"})
	}
	return result
}

func askResult(index int, value bool) *pipeline.ExecutionResult {
	outcome := pipeline.OutcomeSuccess
	if !value {
		outcome = pipeline.OutcomeEmpty
	}
	return &pipeline.ExecutionResult{
		Candidate: &pipeline.CandidateQuery{
			Text:   "ASK { ?s ?p ?o }",
			Form:   pipeline.FormAsk,
			Index:  index,
			Status: pipeline.StatusExecuted,
		},
		Boolean: &value,
		Outcome: outcome,
	}
}

func failedResult(index int, outcome pipeline.Outcome) *pipeline.ExecutionResult {
	return &pipeline.ExecutionResult{
		Candidate: &pipeline.CandidateQuery{
			Text:   "SELECT ?s WHERE { ?s ?p ?o }",
			Form:   pipeline.FormSelect,
			Index:  index,
			Status: pipeline.StatusExecuted,
		},
		Outcome: outcome,
		Err:     "boom",
	}
}

func TestRanker_ManySameFormDuplicatesStayAboveEmptyResults(t *testing.T) {
	// The cumulative same-form penalty is capped: even the sixtieth
	// non-empty SELECT must not fall below an ASK false or an empty SELECT.
	var results []*pipeline.ExecutionResult
	for i := 0; i < 60; i++ {
		results = append(results, selectResult(i, 1))
	}
	results = append(results, askResult(60, false), selectResult(61, 0))

	ranked := newRanker().Rank("anything", results, len(results))
	require.Len(t, ranked, len(results))

	// The two empty results sit at the bottom, in that order.
	assert.Equal(t, 60, ranked[len(ranked)-2].Result.Candidate.Index)
	assert.Equal(t, 61, ranked[len(ranked)-1].Result.Candidate.Index)
	for _, evidence := range ranked[:len(ranked)-2] {
		assert.Equal(t, pipeline.OutcomeSuccess, evidence.Result.Outcome)
	}
}

func TestRanker_NonEmptyOutranksEverythingElse(t *testing.T) {
	// One row of evidence beats a definite ASK true, an ASK false, and an
	// empty SELECT.
	results := []*pipeline.ExecutionResult{
		askResult(0, true),
		selectResult(1, 1),
		askResult(2, false),
		selectResult(3, 0),
	}

	ranked := newRanker().Rank("anything", results, 4)
	require.Len(t, ranked, 4)

	assert.Equal(t, 1, ranked[0].Result.Candidate.Index)
	assert.Equal(t, 0, ranked[1].Result.Candidate.Index)
	assert.Equal(t, 2, ranked[2].Result.Candidate.Index)
	assert.Equal(t, 3, ranked[3].Result.Candidate.Index)

	for i, item := range ranked {
		assert.Equal(t, i, item.Rank)
	}
}

func TestRanker_ExcludesFailures(t *testing.T) {
	results := []*pipeline.ExecutionResult{
		failedResult(0, pipeline.OutcomeTimedOut),
		selectResult(1, 2),
		failedResult(2, pipeline.OutcomeStoreError),
	}

	ranked := newRanker().Rank("q", results, 3)
	require.Len(t, ranked, 1)
	assert.Equal(t, 1, ranked[0].Result.Candidate.Index)
}

func TestRanker_TopK(t *testing.T) {
	results := []*pipeline.ExecutionResult{
		selectResult(0, 1),
		selectResult(1, 2),
		selectResult(2, 3),
		selectResult(3, 4),
	}

	ranked := newRanker().Rank("q", results, 2)
	assert.Len(t, ranked, 2)
}

func TestRanker_LargerFillRanksHigher(t *testing.T) {
	results := []*pipeline.ExecutionResult{
		selectResult(0, 3),
		selectResult(1, 30),
	}

	ranked := newRanker().Rank("q", results, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Result.Candidate.Index)
}

func TestRanker_AtCapResultLosesToUnderCap(t *testing.T) {
	// 100 rows exactly fills max_rows and may be truncated; 80 rows of a
	// complete result is the stronger signal.
	results := []*pipeline.ExecutionResult{
		selectResult(0, 100),
		selectResult(1, 80),
	}

	ranked := newRanker().Rank("q", results, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Result.Candidate.Index)
}

func TestRanker_LexicalOverlapBreaksTies(t *testing.T) {
	plain := selectResult(0, 1)
	matching := selectResult(1, 1)
	matching.Rows[0] = map[string]string{"name": "Ada Lovelace"}

	ranked := newRanker().Rank("who is Ada Lovelace", []*pipeline.ExecutionResult{plain, matching}, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Result.Candidate.Index)
}

func TestRanker_TiesBreakByGenerationOrder(t *testing.T) {
	// Identical scores: earlier candidate wins, on every invocation.
	results := []*pipeline.ExecutionResult{
		selectResult(0, 5),
		selectResult(1, 5),
		selectResult(2, 5),
	}

	for i := 0; i < 10; i++ {
		ranked := newRanker().Rank("q", results, 3)
		require.Len(t, ranked, 3)
		assert.Equal(t, 0, ranked[0].Result.Candidate.Index)
		assert.Equal(t, 1, ranked[1].Result.Candidate.Index)
		assert.Equal(t, 2, ranked[2].Result.Candidate.Index)
	}
}

func TestRanker_EmptyInput(t *testing.T) {
	assert.Empty(t, newRanker().Rank("q", nil, 3))
}
