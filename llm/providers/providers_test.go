package providers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Ontology-Bot/Ontology-Analyzer/llm"
	_ "github.com/Ontology-Bot/Ontology-Analyzer/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredProviders(t *testing.T) {
	for _, name := range []string{"ollama", "openai", "anthropic"} {
		assert.NotNil(t, llm.GetProvider(name), name)
	}
	assert.Nil(t, llm.GetProvider("unknown"))
}

func TestOllama_BuildURL(t *testing.T) {
	p := llm.GetProvider("ollama")

	assert.Equal(t, "http://host:1234/v1/chat/completions", p.BuildURL("http://host:1234/v1"))
	assert.Equal(t, "http://host:1234/v1/chat/completions", p.BuildURL("http://host:1234/v1/"))
	// Already-complete URLs pass through.
	assert.Equal(t, "http://host:1234/v1/chat/completions", p.BuildURL("http://host:1234/v1/chat/completions"))
}

func TestOllama_JSONOnlySetsResponseFormat(t *testing.T) {
	p := llm.GetProvider("ollama")

	body, err := p.BuildRequestBody("m", []llm.Message{{Role: "user", Content: "hi"}}, llm.RequestOptions{JSONOnly: true})
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))
	format, ok := req["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAI_SetHeaders(t *testing.T) {
	p := llm.GetProvider("openai")

	req, _ := http.NewRequest("POST", "http://example.com", nil)
	p.SetHeaders(req, "sk-test")
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
}

func TestAnthropic_SetHeaders(t *testing.T) {
	p := llm.GetProvider("anthropic")

	req, _ := http.NewRequest("POST", "http://example.com", nil)
	p.SetHeaders(req, "key-123")
	assert.Equal(t, "key-123", req.Header.Get("x-api-key"))
	assert.NotEmpty(t, req.Header.Get("anthropic-version"))
}

func TestAnthropic_SystemMessageExtracted(t *testing.T) {
	p := llm.GetProvider("anthropic")

	body, err := p.BuildRequestBody("m", []llm.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}, llm.RequestOptions{})
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, "be terse", req["system"])

	messages, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	first := messages[0].(map[string]any)
	assert.Equal(t, "user", first["role"])

	// max_tokens defaults when unset; the API requires it.
	assert.Equal(t, float64(4096), req["max_tokens"])
}
