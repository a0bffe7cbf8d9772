package pipeline_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ontology-Bot/Ontology-Analyzer/config"
	"github.com/Ontology-Bot/Ontology-Analyzer/llm"
	"github.com/Ontology-Bot/Ontology-Analyzer/pipeline"
	"github.com/Ontology-Bot/Ontology-Analyzer/sparql"
)

// scriptedChat plays the planner and the synthesizer: JSONOnly requests get
// the planner script, everything else gets the answer script.
type scriptedChat struct {
	mu             sync.Mutex
	plannerContent string
	answerContent  string
	requests       []llm.Request
}

func (s *scriptedChat) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if req.JSONOnly {
		return &llm.Response{Content: s.plannerContent, Model: req.Model}, nil
	}
	return &llm.Response{Content: s.answerContent, Model: req.Model}, nil
}

func (s *scriptedChat) Stream(ctx context.Context, req llm.Request, fn func(delta string) error) error {
	resp, err := s.Complete(ctx, req)
	if err != nil {
		return err
	}
	return fn(resp.Content)
}

// newStoreServer serves empty introspection results and canned evidence
// rows. Queries containing "slowmarker" hang until the request context ends.
func newStoreServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query := r.PostForm.Get("query")

		if strings.Contains(query, "slowmarker") {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Second):
			}
		}

		w.Header().Set("Content-Type", "application/sparql-results+json")
		switch {
		case strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "ASK"):
			fmt.Fprint(w, `{"head": {}, "boolean": true}`)
		case strings.Contains(query, "owl:Class") || strings.Contains(query, "rdf:Property") || strings.Contains(query, "GRAPH ?g"):
			fmt.Fprint(w, `{"head": {"vars": []}, "results": {"bindings": []}}`)
		default:
			fmt.Fprint(w, `{
  "head": {"vars": ["name"]},
  "results": {"bindings": [
    {"name": {"type": "literal", "value": "Ada Lovelace"}}
  ]}
}`)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(storeURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.SPARQL.BaseURL = storeURL
	cfg.SPARQL.TimeoutSec = 1
	cfg.LLM.Provider = "ollama"
	cfg.LLM.BaseURL = "http://unused.example"
	cfg.LLM.DefaultModel = "test-model"
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config, chat pipeline.ChatClient) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(cfg,
		pipeline.WithChatClient(chat),
		pipeline.WithStoreClient(sparql.NewClient(cfg.SPARQL.BaseURL)),
		pipeline.WithMetrics(pipeline.NewMetrics(prometheus.NewRegistry())))
	require.NoError(t, err)
	return p
}

func TestPipeline_Answer(t *testing.T) {
	store := newStoreServer(t)
	chat := &scriptedChat{
		plannerContent: `{"queries": [
  "SELECT ?name WHERE { ?s <http://xmlns.com/foaf/0.1/name> ?name }",
  "ASK { ?s a <http://example.org/Person> }"
]}`,
		answerContent: "Ada Lovelace is in the knowledge base.",
	}

	p := newTestPipeline(t, testConfig(store.URL), chat)
	answer, err := p.Answer(context.Background(), pipeline.Question{Text: "who is Ada Lovelace?"})

	require.NoError(t, err)
	assert.True(t, answer.Found)
	assert.Equal(t, "Ada Lovelace is in the knowledge base.", answer.Text)
	// Both candidates produced evidence and were cited.
	assert.Len(t, answer.Queries, 2)

	// Two model calls: one planner, one synthesis.
	require.Len(t, chat.requests, 2)
	assert.True(t, chat.requests[0].JSONOnly)
	assert.False(t, chat.requests[1].JSONOnly)
	// Synthesis saw the packed evidence.
	synthesisPrompt := chat.requests[1].Messages[len(chat.requests[1].Messages)-1].Content
	assert.Contains(t, synthesisPrompt, "Ada Lovelace")
}

func TestPipeline_Answer_RejectedCandidateDoesNotBlockSiblings(t *testing.T) {
	store := newStoreServer(t)
	chat := &scriptedChat{
		plannerContent: `{"queries": [
  "DELETE WHERE { ?s ?p ?o }",
  "SELECT ?name WHERE { ?s ?p ?name }"
]}`,
		answerContent: "Found it.",
	}

	p := newTestPipeline(t, testConfig(store.URL), chat)
	answer, err := p.Answer(context.Background(), pipeline.Question{Text: "q"})

	require.NoError(t, err)
	assert.True(t, answer.Found)
	// Only the surviving candidate is cited.
	require.Len(t, answer.Queries, 1)
	assert.Contains(t, answer.Queries[0], "SELECT")
}

func TestPipeline_Answer_SlowCandidateTimesOutOthersSurvive(t *testing.T) {
	store := newStoreServer(t)
	chat := &scriptedChat{
		plannerContent: `{"queries": [
  "SELECT ?s WHERE { ?s <http://example.org/slowmarker> ?o }",
  "SELECT ?name WHERE { ?s ?p ?name }"
]}`,
		answerContent: "Answer from the fast candidate.",
	}

	p := newTestPipeline(t, testConfig(store.URL), chat)

	start := time.Now()
	answer, err := p.Answer(context.Background(), pipeline.Question{Text: "q"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, answer.Found)
	// The slow candidate timed out and was excluded; only the fast one is
	// cited, and the request finished around the per-query timeout, not
	// the slow store's 10s.
	require.Len(t, answer.Queries, 1)
	assert.NotContains(t, answer.Queries[0], "slowmarker")
	assert.Less(t, elapsed, 5*time.Second)
}

func TestPipeline_Answer_RequestBudgetForcesRankingOnPartialEvidence(t *testing.T) {
	store := newStoreServer(t)
	chat := &scriptedChat{
		plannerContent: `{"queries": [
  "SELECT ?s WHERE { ?s <http://example.org/slowmarker> ?o }",
  "SELECT ?name WHERE { ?s ?p ?name }"
]}`,
		answerContent: "Answer within the request budget.",
	}

	// Generous per-query timeout so only the request-level budget can end
	// the hanging candidate.
	cfg := testConfig(store.URL)
	cfg.SPARQL.TimeoutSec = 30
	cfg.Pipeline.RequestTimeoutSec = 1

	p := newTestPipeline(t, cfg, chat)

	start := time.Now()
	answer, err := p.Answer(context.Background(), pipeline.Question{Text: "q"})
	elapsed := time.Since(start)

	// Budget expiry is not an error: ranking runs with whatever reached a
	// terminal state and synthesis answers from it.
	require.NoError(t, err)
	assert.True(t, answer.Found)
	require.Len(t, answer.Queries, 1)
	assert.NotContains(t, answer.Queries[0], "slowmarker")
	assert.Less(t, elapsed, 5*time.Second)
}

func TestPipeline_Answer_LexicalFallback(t *testing.T) {
	store := newStoreServer(t)
	chat := &scriptedChat{
		plannerContent: "I am sorry, I cannot write SPARQL today.",
		answerContent:  "Fallback evidence answer.",
	}

	p := newTestPipeline(t, testConfig(store.URL), chat)
	answer, err := p.Answer(context.Background(), pipeline.Question{Text: "where is Ada Lovelace?"})

	require.NoError(t, err)
	assert.True(t, answer.Found)
	require.NotEmpty(t, answer.Queries)
	assert.Contains(t, answer.Queries[0], "CONTAINS")
}

func TestPipeline_Answer_NoEvidenceWithoutFallback(t *testing.T) {
	store := newStoreServer(t)
	chat := &scriptedChat{
		plannerContent: "no queries here",
		answerContent:  "must not be used",
	}

	cfg := testConfig(store.URL)
	cfg.Pipeline.EnableLexicalSearch = false

	p := newTestPipeline(t, cfg, chat)
	answer, err := p.Answer(context.Background(), pipeline.Question{Text: "q"})

	require.NoError(t, err)
	assert.False(t, answer.Found)
	assert.Empty(t, answer.Queries)
	assert.Contains(t, answer.Text, "No supporting evidence")
	// Only the planner was called; nothing synthesized from thin air.
	require.Len(t, chat.requests, 1)
	assert.True(t, chat.requests[0].JSONOnly)
}

func TestPipeline_AnswerStream(t *testing.T) {
	store := newStoreServer(t)
	chat := &scriptedChat{
		plannerContent: `{"queries": ["SELECT ?name WHERE { ?s ?p ?name }"]}`,
		answerContent:  "Streamed.",
	}

	p := newTestPipeline(t, testConfig(store.URL), chat)

	var fragments []string
	answer, err := p.AnswerStream(context.Background(), pipeline.Question{Text: "q"}, func(fragment string) error {
		fragments = append(fragments, fragment)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, answer.Found)
	assert.Equal(t, "Streamed.", strings.Join(fragments, ""))
	assert.Equal(t, answer.Text, strings.Join(fragments, ""))
}

func TestPipeline_AnswerStream_RequiresCallback(t *testing.T) {
	store := newStoreServer(t)
	p := newTestPipeline(t, testConfig(store.URL), &scriptedChat{})

	_, err := p.AnswerStream(context.Background(), pipeline.Question{Text: "q"}, nil)
	require.Error(t, err)
}

func TestPipeline_Answer_CallerCancellation(t *testing.T) {
	store := newStoreServer(t)
	chat := &scriptedChat{
		plannerContent: `{"queries": ["SELECT ?s WHERE { ?s <http://example.org/slowmarker> ?o }"]}`,
		answerContent:  "unused",
	}

	cfg := testConfig(store.URL)
	cfg.SPARQL.TimeoutSec = 30

	p := newTestPipeline(t, cfg, chat)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := p.Answer(ctx, pipeline.Question{Text: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_New_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	// No endpoints configured.
	_, err := pipeline.New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
