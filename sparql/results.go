package sparql

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Binding is one RDF term bound to a variable in a result row.
type Binding struct {
	Type     string `json:"type"` // "uri", "literal", or "bnode"
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Results holds the decoded SPARQL JSON results of a SELECT or ASK query.
type Results struct {
	// Vars lists the projected variables, in projection order.
	Vars []string

	// Bindings holds one map per solution row. Unbound variables are absent.
	Bindings []map[string]Binding

	// Boolean is set for ASK queries and nil otherwise.
	Boolean *bool
}

// IsAsk reports whether the results came from an ASK query.
func (r *Results) IsAsk() bool {
	return r.Boolean != nil
}

// Row returns the string values of one row keyed by variable name.
func (r *Results) Row(i int) map[string]string {
	row := make(map[string]string, len(r.Bindings[i]))
	for k, b := range r.Bindings[i] {
		row[k] = b.Value
	}
	return row
}

// resultsJSON mirrors the SPARQL 1.1 query results JSON format.
type resultsJSON struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]Binding `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean"`
}

// parseResults decodes a SPARQL results JSON document.
func parseResults(body []byte) (*Results, error) {
	var raw resultsJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse sparql results: %w", err)
	}

	results := &Results{
		Vars:    raw.Head.Vars,
		Boolean: raw.Boolean,
	}
	if raw.Results != nil {
		results.Bindings = raw.Results.Bindings
	}
	return results, nil
}

// TripleLines splits a Turtle document into its content lines, dropping
// blank lines and prefix declarations. This is a line-oriented preview of
// the constructed triples, not a full Turtle parser.
func TripleLines(turtle string) []string {
	var lines []string
	for _, line := range strings.Split(turtle, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "@prefix") || strings.HasPrefix(line, "@base") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
