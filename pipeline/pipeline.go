package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ontology-Bot/Ontology-Analyzer/config"
	"github.com/Ontology-Bot/Ontology-Analyzer/llm"
	"github.com/Ontology-Bot/Ontology-Analyzer/schema"
	"github.com/Ontology-Bot/Ontology-Analyzer/sparql"
)

// Pipeline is the single entry point: it turns a question into an Answer
// by generating candidate SPARQL queries, validating and executing them in
// parallel, ranking the evidence and synthesizing a grounded response.
type Pipeline struct {
	cfg    *config.Config
	chat   ChatClient
	store  *sparql.Client
	logger *slog.Logger

	profiler    *schema.Profiler
	generator   *Generator
	validator   *Validator
	executor    *Executor
	ranker      *Ranker
	synthesizer *Synthesizer
	lexical     *Lexical
	metrics     *Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithChatClient overrides the LLM client built from configuration.
func WithChatClient(chat ChatClient) Option {
	return func(p *Pipeline) {
		p.chat = chat
	}
}

// WithStoreClient overrides the SPARQL client built from configuration.
func WithStoreClient(store *sparql.Client) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// New builds a pipeline from configuration. Configuration errors are the
// only fatal failure mode and are reported here, before any stage runs.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	queryTimeout := time.Duration(cfg.SPARQL.TimeoutSec) * time.Second

	if p.chat == nil {
		p.chat = llm.NewClient(llm.Endpoint{
			Provider: cfg.LLM.Provider,
			BaseURL:  cfg.LLM.BaseURL,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.DefaultModel,
		}, llm.WithLogger(p.logger))
	}
	if p.store == nil {
		p.store = sparql.NewClient(cfg.SPARQL.BaseURL,
			sparql.WithTimeout(queryTimeout),
			sparql.WithLogger(p.logger))
	}

	p.profiler = schema.NewProfiler(p.store,
		schema.WithCacheTTL(cfg.SPARQL.SchemaCacheTTL),
		schema.WithSchemaGraph(cfg.SPARQL.SchemaGraphURI, cfg.SPARQL.SchemaTTLMaxChars),
		schema.WithLogger(p.logger))

	p.generator = NewGenerator(p.chat, GeneratorConfig{
		Model:         cfg.LLM.DefaultModel,
		MaxTokens:     cfg.LLM.PlannerMaxTokens,
		Timeout:       time.Duration(cfg.LLM.PlannerTimeoutSec) * time.Second,
		MaxRows:       cfg.Pipeline.MaxRows,
		MaxTriples:    cfg.Pipeline.MaxTriples,
		AllowDescribe: cfg.Pipeline.AllowDescribe,
	}, p.logger)

	p.validator = &Validator{
		MaxRows:       cfg.Pipeline.MaxRows,
		MaxTriples:    cfg.Pipeline.MaxTriples,
		MaxQueryChars: cfg.Pipeline.MaxQueryChars,
		AllowDescribe: cfg.Pipeline.AllowDescribe,
	}

	p.executor = NewExecutor(p.store, queryTimeout,
		cfg.Pipeline.MaxRows, cfg.Pipeline.MaxTriples, p.logger)

	p.ranker = &Ranker{
		MaxRows:    cfg.Pipeline.MaxRows,
		MaxTriples: cfg.Pipeline.MaxTriples,
	}

	p.synthesizer = NewSynthesizer(p.chat, cfg.LLM.DefaultModel, p.logger)

	p.lexical = &Lexical{
		MaxTokens:     cfg.Pipeline.LexicalMaxTokens,
		MaxCandidates: cfg.Pipeline.LexicalMaxCandidates,
		MaxRows:       cfg.Pipeline.MaxRows,
	}

	return p, nil
}

// Profiler exposes the schema profiler, for hosts that want to warm or
// inspect the cache.
func (p *Pipeline) Profiler() *schema.Profiler {
	return p.profiler
}

// Answer processes one question and returns the complete Answer.
func (p *Pipeline) Answer(ctx context.Context, q Question) (*Answer, error) {
	return p.run(ctx, q, nil)
}

// AnswerStream processes one question, relaying answer fragments through
// fn as they are produced. fn is called from the calling goroutine and is
// never called again after AnswerStream returns.
func (p *Pipeline) AnswerStream(ctx context.Context, q Question, fn func(fragment string) error) (*Answer, error) {
	if fn == nil {
		return nil, fmt.Errorf("fragment callback is required")
	}
	return p.run(ctx, q, fn)
}

func (p *Pipeline) run(ctx context.Context, q Question, fn func(string) error) (*Answer, error) {
	requestID := uuid.New().String()[:8]
	logger := p.logger.With("request_id", requestID)
	logger.Info("Processing question", "question_chars", len(q.Text))

	// Schema context is an aid to the planner, not a correctness
	// requirement: on store failure continue with whatever came back
	// (stale or empty profile).
	profileStart := time.Now()
	profile, err := p.profiler.Profile(ctx, false)
	if err != nil {
		logger.Warn("Schema profile unavailable, continuing with degraded context", "error", err)
	}
	p.metrics.observeStage("schema", profileStart)

	var schemaTTL string
	if p.cfg.SPARQL.IncludeFullSchemaTTL {
		schemaTTL, err = p.profiler.SchemaTTL(ctx)
		if err != nil {
			logger.Warn("Schema TTL unavailable, continuing without it", "error", err)
		}
	}

	// The request budget covers planning and execution. Synthesis runs
	// on the caller's context so a slow store never eats the whole answer.
	budget := time.Duration(p.cfg.Pipeline.RequestTimeoutSec) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	generateStart := time.Now()
	candidates, err := p.generator.Generate(execCtx, q, profile, schemaTTL, p.cfg.Pipeline.QueryCandidates)
	p.metrics.observeStage("generate", generateStart)
	if err != nil {
		if ctx.Err() != nil {
			p.metrics.observeRequest("error")
			return nil, ctx.Err()
		}
		logger.Warn("Candidate generation produced nothing usable", "error", err)

		if p.cfg.Pipeline.EnableLexicalSearch {
			candidates = p.lexical.Candidates(q.Text)
			if len(candidates) > 0 {
				logger.Info("Falling back to lexical candidates", "count", len(candidates))
			}
		}
		if len(candidates) == 0 {
			return p.synthesize(ctx, logger, q, nil, fn)
		}
	}
	p.metrics.observeGenerated(len(candidates))

	executeStart := time.Now()
	results := p.executeAll(execCtx, logger, candidates)
	p.metrics.observeStage("execute", executeStart)

	// Whole-request cancellation discards partial evidence: the Answer
	// contract is all-or-nothing.
	if err := ctx.Err(); err != nil {
		p.metrics.observeRequest("error")
		return nil, err
	}

	ranked := p.ranker.Rank(q.Text, results, p.cfg.Pipeline.TopK)
	logger.Info("Evidence ranked",
		"candidates", len(candidates),
		"executed", len(results),
		"selected", len(ranked))

	return p.synthesize(ctx, logger, q, ranked, fn)
}

// executeAll validates and executes candidates in parallel up to the
// configured concurrency limit, returning only terminal-state results.
// Rejected candidates produce no result; candidates still outstanding when
// the request budget expires come back timed-out.
func (p *Pipeline) executeAll(ctx context.Context, logger *slog.Logger, candidates []*CandidateQuery) []*ExecutionResult {
	slots := make([]*ExecutionResult, len(candidates))

	var g errgroup.Group
	g.SetLimit(p.cfg.Pipeline.MaxConcurrent)

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			if err := p.validator.Validate(c); err != nil {
				var reason *RejectionReason
				if errors.As(err, &reason) {
					p.metrics.observeRejected(reason.Kind)
				}
				logger.Warn("Candidate rejected",
					"index", c.Index,
					"form", c.Form,
					"error", err)
				return nil
			}

			result := p.executor.Execute(ctx, c)
			p.metrics.observeExecution(result.Outcome)
			slots[i] = result
			return nil
		})
	}

	// Workers never return errors; failures are per-candidate and
	// recorded in their results.
	_ = g.Wait()

	results := make([]*ExecutionResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, r)
		}
	}
	return results
}

func (p *Pipeline) synthesize(ctx context.Context, logger *slog.Logger, q Question, ranked []RankedEvidence, fn func(string) error) (*Answer, error) {
	synthesizeStart := time.Now()

	var answer *Answer
	var err error
	if fn == nil {
		answer, err = p.synthesizer.Synthesize(ctx, q, ranked)
	} else {
		answer, err = p.synthesizer.SynthesizeStream(ctx, q, ranked, fn)
	}
	p.metrics.observeStage("synthesize", synthesizeStart)

	if err != nil {
		p.metrics.observeRequest("error")
		return nil, err
	}

	if answer.Found {
		p.metrics.observeRequest("answered")
	} else {
		p.metrics.observeRequest("no_evidence")
	}
	logger.Info("Answer composed",
		"found", answer.Found,
		"cited_queries", len(answer.Queries))

	return answer, nil
}
