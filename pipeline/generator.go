package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Ontology-Bot/Ontology-Analyzer/llm"
	"github.com/Ontology-Bot/Ontology-Analyzer/schema"
)

// ChatClient is the LLM surface the pipeline consumes. *llm.Client
// satisfies it.
type ChatClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	Stream(ctx context.Context, req llm.Request, fn func(delta string) error) error
}

// ErrGenerationEmpty indicates the model produced no parseable candidates.
// It is surfaced as a "no evidence found" answer, never as a hard failure.
var ErrGenerationEmpty = errors.New("pipeline: model produced no parseable query candidates")

// Generator asks the language model for candidate SPARQL queries.
type Generator struct {
	chat      ChatClient
	model     string
	maxTokens int
	timeout   time.Duration

	maxRows       int
	maxTriples    int
	allowDescribe bool

	logger *slog.Logger
}

// GeneratorConfig bundles the generator's settings.
type GeneratorConfig struct {
	// Model is the default planner model.
	Model string
	// MaxTokens limits the planner response. 0 uses the endpoint default.
	MaxTokens int
	// Timeout bounds the planner call.
	Timeout time.Duration
	// MaxRows and MaxTriples are embedded in the prompt so the model
	// proposes bounded queries in the first place.
	MaxRows    int
	MaxTriples int
	// AllowDescribe adds DESCRIBE to the advertised allowed forms.
	AllowDescribe bool
}

// NewGenerator creates a candidate generator.
func NewGenerator(chat ChatClient, cfg GeneratorConfig, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		chat:          chat,
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		timeout:       cfg.Timeout,
		maxRows:       cfg.MaxRows,
		maxTriples:    cfg.MaxTriples,
		allowDescribe: cfg.AllowDescribe,
		logger:        logger,
	}
}

// Generate requests up to count candidate queries for the question.
// A partial parse is not an error: downstream stages tolerate fewer
// candidates than requested. Zero parseable candidates is ErrGenerationEmpty.
func (g *Generator) Generate(ctx context.Context, q Question, profile *schema.Profile, schemaTTL string, count int) ([]*CandidateQuery, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	model := q.Model
	if model == "" {
		model = g.model
	}

	prompt := g.buildPrompt(q.Text, profile, schemaTTL, count)
	temperature := 0.0 // deterministic planning

	g.logger.Debug("Requesting query candidates",
		"model", model,
		"count", count,
		"prompt_chars", len(prompt))

	resp, err := g.chat.Complete(ctx, llm.Request{
		Model:       model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: &temperature,
		MaxTokens:   g.maxTokens,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("planner call failed: %w", err)
	}

	candidates := ParseCandidates(resp.Content, count)
	if len(candidates) == 0 {
		return nil, ErrGenerationEmpty
	}

	g.logger.Info("Parsed query candidates",
		"requested", count,
		"parsed", len(candidates))

	return candidates, nil
}

// buildPrompt embeds the question and schema context into the planner prompt.
func (g *Generator) buildPrompt(question string, profile *schema.Profile, schemaTTL string, count int) string {
	allowedForms := "SELECT, ASK, CONSTRUCT"
	if g.allowDescribe {
		allowedForms += ", DESCRIBE"
	}

	var b strings.Builder
	b.WriteString("You are a SPARQL planner. Generate read-only SPARQL queries that can help answer the user question.\n")
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "1. Generate up to %d queries.\n", count)
	fmt.Fprintf(&b, "2. Query forms allowed: %s.\n", allowedForms)
	fmt.Fprintf(&b, "3. Keep every query bounded with LIMIT %d for SELECT and LIMIT %d for CONSTRUCT when applicable.\n", g.maxRows, g.maxTriples)
	b.WriteString("4. Output a STRICT JSON object with key 'queries' and value as string array. No markdown.\n\n")
	b.WriteString("Schema metadata:\n")
	b.WriteString(profile.Summary())
	b.WriteString("\n\nUser question:\n")
	b.WriteString(question)

	if schemaTTL != "" {
		b.WriteString("\n\nSchema TTL (verbatim):\n")
		b.WriteString(schemaTTL)
	}

	return b.String()
}

// ParseCandidates extracts candidate queries from free-form model output.
// It never fails on malformed input: it yields zero or partial candidates.
// Duplicate queries (modulo whitespace and case) collapse to the first
// occurrence; at most limit candidates are returned.
func ParseCandidates(content string, limit int) []*CandidateQuery {
	queries := parseQueryStrings(content)

	seen := make(map[string]bool)
	var candidates []*CandidateQuery
	for _, text := range queries {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		normalized := NormalizeQuery(text)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true

		candidates = append(candidates, &CandidateQuery{
			Text:   text,
			Form:   ClassifyForm(text),
			Index:  len(candidates),
			Status: StatusGenerated,
		})
		if limit > 0 && len(candidates) >= limit {
			break
		}
	}
	return candidates
}

// parseQueryStrings tries the strict JSON contract first, then falls back
// to scanning for query-form keywords in raw text.
func parseQueryStrings(content string) []string {
	if raw := llm.ExtractJSON(content); raw != "" {
		var payload struct {
			Queries []string `json:"queries"`
		}
		if err := json.Unmarshal([]byte(raw), &payload); err == nil && payload.Queries != nil {
			return payload.Queries
		}
	}

	return splitQueryBlocks(content)
}

// splitQueryBlocks slices raw text into chunks starting at each line that
// begins with a query-form keyword (optionally preceded by a prologue).
func splitQueryBlocks(content string) []string {
	starts := blockStartPattern.FindAllStringIndex(content, -1)
	if len(starts) == 0 {
		return nil
	}

	var blocks []string
	for i, loc := range starts {
		end := len(content)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		block := strings.TrimSpace(content[loc[0]:end])
		block = strings.TrimSuffix(block, "```")
		block = strings.TrimSpace(block)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// blockStartPattern anchors candidate starts at lines opening with a query
// form keyword.
var blockStartPattern = regexp.MustCompile(`(?im)^[ \t]*(?:SELECT|ASK|CONSTRUCT|DESCRIBE)\b`)
