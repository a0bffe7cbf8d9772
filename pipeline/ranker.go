package pipeline

import (
	"regexp"
	"sort"
	"strings"
)

// Scoring weights. The ordering contracts (non-empty > empty, under-cap >
// at-cap) are fixed; the specific weights are tunable.
const (
	// nonEmptyBase dominates every empty-result score so a non-empty
	// result always outranks an empty one.
	nonEmptyBase = 1.0
	// fillWeight rewards larger results relative to their cap.
	fillWeight = 0.5
	// atCapPenalty marks results that exactly fill the cap: they may be
	// truncated and are a weaker signal than an under-cap result.
	atCapPenalty = 0.15
	// lexicalWeight rewards overlap between question tokens and result
	// values, per hit.
	lexicalWeight = 0.03
	// lexicalMax caps the total lexical contribution.
	lexicalMax = 0.3
	// askFalseScore gives a definite negative ASK some signal above a
	// rowless SELECT, while staying strictly below any non-empty result.
	askFalseScore = 0.2
	// duplicateFormPenalty discourages surfacing near-duplicate variants
	// of the same form when other forms produced evidence.
	duplicateFormPenalty = 0.02
	// duplicateFormPenaltyMax caps the cumulative duplicate penalty; left
	// unbounded it could push a non-empty score below askFalseScore and
	// break the non-empty > empty ordering.
	duplicateFormPenaltyMax = 0.1
)

// formPreference breaks ties between forms: tabular evidence reads better
// in synthesis than a bare boolean.
var formPreference = map[Form]float64{
	FormSelect:    0.05,
	FormConstruct: 0.04,
	FormDescribe:  0.03,
	FormAsk:       0.01,
}

// resultTokenPattern tokenizes question and result text for overlap scoring.
var resultTokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// Ranker scores execution results and selects the most informative ones.
type Ranker struct {
	// MaxRows and MaxTriples are the execution caps, used to compute fill
	// ratios.
	MaxRows    int
	MaxTriples int
}

// Rank scores the eligible results and returns the topK best, best-first.
// Only success and empty outcomes are eligible; timed-out and store-error
// results carry no usable evidence and are excluded entirely. Ties break
// by generation order, so re-ranking identical inputs is deterministic.
func (r *Ranker) Rank(question string, results []*ExecutionResult, topK int) []RankedEvidence {
	questionTokens := tokenSet(question)

	// Occurrences of each form in generation order, for the duplicate
	// penalty.
	formSeen := make(map[Form]int)

	var ranked []RankedEvidence
	for _, result := range results {
		if result.Outcome != OutcomeSuccess && result.Outcome != OutcomeEmpty {
			continue
		}
		dup := formSeen[result.Candidate.Form]
		formSeen[result.Candidate.Form]++

		ranked = append(ranked, RankedEvidence{
			Result: result,
			Score:  r.score(result, dup, questionTokens),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Result.Candidate.Index < ranked[j].Result.Candidate.Index
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	for i := range ranked {
		ranked[i].Rank = i
	}
	return ranked
}

// score computes the relevance score for one eligible result.
func (r *Ranker) score(result *ExecutionResult, duplicateIndex int, questionTokens map[string]bool) float64 {
	if result.Outcome == OutcomeEmpty {
		if result.Boolean != nil {
			return askFalseScore
		}
		return 0
	}

	score := nonEmptyBase + formPreference[result.Candidate.Form]

	// An ASK carries a single bit; only row/triple results earn fill credit.
	if result.Boolean == nil {
		limit := r.MaxRows
		if result.Candidate.Form == FormConstruct || result.Candidate.Form == FormDescribe {
			limit = r.MaxTriples
		}
		if limit > 0 {
			size := result.Size()
			fill := float64(size) / float64(limit)
			if fill > 1 {
				fill = 1
			}
			score += fillWeight * fill
			if size >= limit {
				score -= atCapPenalty
			}
		}
	}

	if lexical := r.lexicalOverlap(result, questionTokens); lexical > 0 {
		bonus := lexicalWeight * float64(lexical)
		if bonus > lexicalMax {
			bonus = lexicalMax
		}
		score += bonus
	}

	dupPenalty := duplicateFormPenalty * float64(duplicateIndex)
	if dupPenalty > duplicateFormPenaltyMax {
		dupPenalty = duplicateFormPenaltyMax
	}
	score -= dupPenalty
	return score
}

// lexicalOverlap counts question tokens appearing in result values.
func (r *Ranker) lexicalOverlap(result *ExecutionResult, questionTokens map[string]bool) int {
	if len(questionTokens) == 0 {
		return 0
	}

	hits := 0
	count := func(text string) {
		for _, token := range resultTokenPattern.FindAllString(strings.ToLower(text), -1) {
			if questionTokens[token] {
				hits++
			}
		}
	}

	for _, row := range result.Rows {
		for _, value := range row {
			count(value)
		}
	}
	for _, line := range result.Triples {
		count(line)
	}
	return hits
}

// tokenSet builds the lowercase token set of the question.
func tokenSet(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, token := range resultTokenPattern.FindAllString(strings.ToLower(text), -1) {
		tokens[token] = true
	}
	return tokens
}
