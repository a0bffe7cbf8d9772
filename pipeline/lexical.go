package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// questionTokenPattern extracts searchable tokens from the user question.
var questionTokenPattern = regexp.MustCompile(`[a-zA-Z0-9_\-]{2,}`)

// Lexical builds keyword-search fallback queries when the planner yields
// nothing parseable. The queries match question tokens against literals,
// labels and IRI local names, so a broken planner still produces grounded
// evidence instead of none.
type Lexical struct {
	// MaxTokens caps how many question tokens feed the filters.
	MaxTokens int
	// MaxCandidates caps the number of queries produced.
	MaxCandidates int
	// MaxRows bounds each query with a LIMIT clause.
	MaxRows int
}

// Candidates derives fallback candidates from the question text. Returns
// nil when the question yields no usable tokens.
func (l *Lexical) Candidates(question string) []*CandidateQuery {
	tokens := l.tokenize(question)
	if len(tokens) == 0 {
		return nil
	}

	var filters []string
	for _, token := range tokens {
		escaped := escapeLiteral(token)
		filters = append(filters,
			fmt.Sprintf("CONTAINS(LCASE(STR(?o)), LCASE('%s'))", escaped),
			fmt.Sprintf("CONTAINS(LCASE(STR(?label)), LCASE('%s'))", escaped),
			fmt.Sprintf("CONTAINS(LCASE(REPLACE(STR(?s), '^.*[#/]', '')), LCASE('%s'))", escaped),
		)
	}
	where := strings.Join(filters, " || ")

	queries := []string{
		fmt.Sprintf("SELECT ?s ?p ?o ?label WHERE { "+
			"?s ?p ?o . "+
			"OPTIONAL { ?s <http://www.w3.org/2000/01/rdf-schema#label> ?label } "+
			"OPTIONAL { ?s <http://www.w3.org/2004/02/skos/core#prefLabel> ?label } "+
			"FILTER(%s) } LIMIT %d", where, l.MaxRows),
		fmt.Sprintf("SELECT ?s ?label WHERE { "+
			"?s a ?type . "+
			"OPTIONAL { ?s <http://www.w3.org/2000/01/rdf-schema#label> ?label } "+
			"OPTIONAL { ?s <http://www.w3.org/2004/02/skos/core#prefLabel> ?label } "+
			"FILTER(%s) } LIMIT %d", where, l.MaxRows),
	}
	if l.MaxCandidates > 0 && len(queries) > l.MaxCandidates {
		queries = queries[:l.MaxCandidates]
	}

	candidates := make([]*CandidateQuery, 0, len(queries))
	for i, text := range queries {
		candidates = append(candidates, &CandidateQuery{
			Text:   text,
			Form:   FormSelect,
			Index:  i,
			Status: StatusGenerated,
		})
	}
	return candidates
}

// tokenize lowercases and dedupes question tokens, preserving order.
func (l *Lexical) tokenize(question string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, token := range questionTokenPattern.FindAllString(strings.ToLower(question), -1) {
		if seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
		if l.MaxTokens > 0 && len(tokens) >= l.MaxTokens {
			break
		}
	}
	return tokens
}

// escapeLiteral escapes backslashes and single quotes for embedding in a
// SPARQL string literal.
func escapeLiteral(raw string) string {
	escaped := strings.ReplaceAll(raw, `\`, `\\`)
	return strings.ReplaceAll(escaped, `'`, `\'`)
}
