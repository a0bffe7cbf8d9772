package llm_test

import (
	"encoding/json"
	"testing"

	"github.com/Ontology-Bot/Ontology-Analyzer/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "plain object",
			content: `{"queries": ["SELECT * WHERE { ?s ?p ?o }"]}`,
			want:    `{"queries": ["SELECT * WHERE { ?s ?p ?o }"]}`,
		},
		{
			name: "markdown fenced",
			content: "Here are the queries:\n```json\n{\"queries\": [\"ASK { ?s ?p ?o }\"]}\n```\nDone.",
			want: `{"queries": ["ASK { ?s ?p ?o }"]}`,
		},
		{
			name: "fence without language tag",
			content: "```\n{\"queries\": []}\n```",
			want: `{"queries": []}`,
		},
		{
			name:    "surrounding prose",
			content: `Sure! {"found": true} hope that helps`,
			want:    `{"found": true}`,
		},
		{
			name:    "no json at all",
			content: "I cannot answer that.",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.ExtractJSON(tt.content))
		})
	}
}

func TestExtractJSON_CleansTrailingCommas(t *testing.T) {
	content := `{"queries": ["SELECT ?s WHERE { ?s ?p ?o }",],}`
	got := llm.ExtractJSON(content)

	var parsed map[string][]string
	require.NoError(t, json.Unmarshal([]byte(got), &parsed))
	assert.Len(t, parsed["queries"], 1)
}

func TestExtractJSON_StripsCommentsButKeepsIRIs(t *testing.T) {
	content := `{
  "queries": [
    "SELECT ?s WHERE { ?s a <http://example.org/Person> }" // people query
  ]
}`
	got := llm.ExtractJSON(content)

	var parsed map[string][]string
	require.NoError(t, json.Unmarshal([]byte(got), &parsed))
	require.Len(t, parsed["queries"], 1)
	// The // inside the IRI must survive; the trailing comment must not.
	assert.Contains(t, parsed["queries"][0], "http://example.org/Person")
}

func TestExtractJSONArray(t *testing.T) {
	content := "```json\n[\"a\", \"b\"]\n```"
	got := llm.ExtractJSONArray(content)

	var parsed []string
	require.NoError(t, json.Unmarshal([]byte(got), &parsed))
	assert.Equal(t, []string{"a", "b"}, parsed)
}
