package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Ontology-Bot/Ontology-Analyzer/llm"
)

// noEvidenceText is the answer when nothing survived validation and
// execution. Fabricating an answer from zero evidence is the failure mode
// this pipeline exists to prevent, so this path never calls the model with
// a pretense of support.
const noEvidenceText = "No supporting evidence was found in the knowledge base for this question. " +
	"The generated queries returned no results, so I cannot give a grounded answer."

// synthesisSystemPrompt instructs the model to stay inside the evidence.
const synthesisSystemPrompt = "Use ontology-grounded SPARQL evidence to answer the user. " +
	"If evidence is weak, state uncertainty explicitly. " +
	"Reference only the queries listed in the evidence. " +
	"Include a short 'Evidence Used' section with query references."

// Synthesizer composes the final answer from ranked evidence.
type Synthesizer struct {
	chat   ChatClient
	model  string
	logger *slog.Logger
}

// NewSynthesizer creates an answer synthesizer.
func NewSynthesizer(chat ChatClient, model string, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		chat:   chat,
		model:  model,
		logger: logger,
	}
}

// Synthesize produces the final answer. When evidence is empty it returns
// the explicit no-evidence answer with Found=false.
func (s *Synthesizer) Synthesize(ctx context.Context, q Question, evidence []RankedEvidence) (*Answer, error) {
	if len(evidence) == 0 {
		return &Answer{
			Text:    noEvidenceText,
			Queries: []string{},
			Found:   false,
		}, nil
	}

	resp, err := s.chat.Complete(ctx, s.buildRequest(q, evidence))
	if err != nil {
		return nil, fmt.Errorf("synthesis call failed: %w", err)
	}

	return &Answer{
		Text:    resp.Content,
		Queries: citedQueries(evidence),
		Found:   true,
	}, nil
}

// SynthesizeStream is like Synthesize but relays answer fragments through
// fn as the model emits them. The no-evidence answer is emitted as a
// single fragment.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, q Question, evidence []RankedEvidence, fn func(fragment string) error) (*Answer, error) {
	if len(evidence) == 0 {
		if err := fn(noEvidenceText); err != nil {
			return nil, err
		}
		return &Answer{
			Text:    noEvidenceText,
			Queries: []string{},
			Found:   false,
		}, nil
	}

	var text strings.Builder
	err := s.chat.Stream(ctx, s.buildRequest(q, evidence), func(delta string) error {
		text.WriteString(delta)
		return fn(delta)
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis stream failed: %w", err)
	}

	return &Answer{
		Text:    text.String(),
		Queries: citedQueries(evidence),
		Found:   true,
	}, nil
}

// buildRequest assembles the synthesis chat request: prior turns, the
// packed evidence, then the question.
func (s *Synthesizer) buildRequest(q Question, evidence []RankedEvidence) llm.Request {
	messages := make([]llm.Message, 0, len(q.History)+2)
	messages = append(messages, llm.Message{Role: "system", Content: synthesisSystemPrompt})
	messages = append(messages, q.History...)
	messages = append(messages, llm.Message{Role: "user", Content: s.buildPrompt(q, evidence)})

	model := q.Model
	if model == "" {
		model = s.model
	}

	return llm.Request{
		Model:    model,
		Messages: messages,
	}
}

// buildPrompt packs the evidence blocks and the user question.
func (s *Synthesizer) buildPrompt(q Question, evidence []RankedEvidence) string {
	var b strings.Builder
	b.WriteString("SPARQL EVIDENCE:\n")
	b.WriteString(PackEvidence(evidence))
	b.WriteString("\n\nUSER QUESTION:\n")
	b.WriteString(q.Text)
	return b.String()
}

// PackEvidence renders the ranked evidence as numbered blocks for prompt
// embedding.
func PackEvidence(evidence []RankedEvidence) string {
	var chunks []string
	for i, item := range evidence {
		block := []string{
			fmt.Sprintf("Evidence #%d", i+1),
			fmt.Sprintf("QueryForm: %s", item.Result.Candidate.Form),
			"Query:",
			item.Result.Candidate.Text,
			"Top bindings/subgraph:",
			Preview(item.Result),
		}
		chunks = append(chunks, strings.Join(block, "\n"))
	}
	return strings.Join(chunks, "\n\n")
}

// citedQueries lists the query texts backing the answer. Only ranked
// evidence is ever cited.
func citedQueries(evidence []RankedEvidence) []string {
	queries := make([]string, 0, len(evidence))
	for _, item := range evidence {
		queries = append(queries, item.Result.Candidate.Text)
	}
	return queries
}
