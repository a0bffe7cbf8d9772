package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Ontology-Bot/Ontology-Analyzer/sparql"
)

// Introspection queries. Each runs under the same per-query timeout as
// evidence queries, enforced by the sparql client.
const (
	classQuery = `PREFIX owl: <http://www.w3.org/2002/07/owl#>
SELECT ?class (COUNT(?instance) AS ?instanceCount)
WHERE {
  ?class a owl:Class .
  OPTIONAL { ?instance a ?class }
}
GROUP BY ?class
ORDER BY DESC(?instanceCount)
LIMIT 25`

	propertyQuery = `PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
SELECT ?prop ?domain ?range
WHERE {
  ?prop a rdf:Property .
  OPTIONAL { ?prop rdfs:domain ?domain }
  OPTIONAL { ?prop rdfs:range ?range }
}
LIMIT 30`

	graphQuery = `SELECT DISTINCT ?g WHERE { GRAPH ?g { ?s ?p ?o } } LIMIT 25`
)

// Profiler builds and caches schema profiles for one store.
// The cache is process-wide state with a single-writer refresh rule:
// concurrent callers observe either the prior value or wait for the one
// in-flight refresh, never triggering duplicate store round-trips.
type Profiler struct {
	store  *sparql.Client
	ttl    time.Duration
	logger *slog.Logger

	group singleflight.Group

	mu         sync.RWMutex
	cached     *Profile
	cachedTTL  string
	ttlFetched bool

	// Schema TTL export settings.
	graphURI    string
	ttlMaxChars int
}

// ProfilerOption configures a Profiler.
type ProfilerOption func(*Profiler)

// WithCacheTTL sets how long a profile stays fresh.
func WithCacheTTL(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.ttl = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ProfilerOption {
	return func(p *Profiler) {
		p.logger = logger
	}
}

// WithSchemaGraph scopes the schema TTL export to one named graph and caps
// its size. maxChars <= 0 disables truncation.
func WithSchemaGraph(graphURI string, maxChars int) ProfilerOption {
	return func(p *Profiler) {
		p.graphURI = graphURI
		p.ttlMaxChars = maxChars
	}
}

// NewProfiler creates a profiler over the given store client.
func NewProfiler(store *sparql.Client, opts ...ProfilerOption) *Profiler {
	p := &Profiler{
		store:  store,
		ttl:    10 * time.Minute,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Profile returns the schema profile, rebuilding it when the cache has
// expired or forceRefresh is set. On store failure it returns the stale
// profile if one exists, or an empty profile, together with the error so
// callers can degrade rather than abort.
func (p *Profiler) Profile(ctx context.Context, forceRefresh bool) (*Profile, error) {
	if !forceRefresh {
		p.mu.RLock()
		cached := p.cached
		p.mu.RUnlock()

		if cached != nil && cached.Age() < p.ttl {
			return cached, nil
		}
	}

	// singleflight collapses concurrent refreshes into one store pass.
	result, err, _ := p.group.Do("profile", func() (any, error) {
		return p.build(ctx)
	})

	if err != nil {
		p.mu.RLock()
		stale := p.cached
		p.mu.RUnlock()

		if stale != nil {
			p.logger.Warn("Schema refresh failed, serving stale profile",
				"age", stale.Age(),
				"error", err)
			return stale, err
		}
		return EmptyProfile(err.Error()), err
	}

	profile := result.(*Profile)
	p.mu.Lock()
	p.cached = profile
	p.mu.Unlock()

	return profile, nil
}

// build runs the introspection queries and assembles a fresh profile.
func (p *Profiler) build(ctx context.Context) (*Profile, error) {
	start := time.Now()

	classes, err := p.store.Query(ctx, classQuery)
	if err != nil {
		return nil, fmt.Errorf("introspect classes: %w", err)
	}

	properties, err := p.store.Query(ctx, propertyQuery)
	if err != nil {
		return nil, fmt.Errorf("introspect properties: %w", err)
	}

	profile := &Profile{
		BuiltAt: time.Now(),
	}

	for i := range classes.Bindings {
		row := classes.Row(i)
		iri := row["class"]
		if iri == "" {
			continue
		}
		count, _ := strconv.Atoi(row["instanceCount"])
		profile.Classes = append(profile.Classes, ClassInfo{IRI: iri, InstanceCount: count})
	}

	for i := range properties.Bindings {
		row := properties.Row(i)
		iri := row["prop"]
		if iri == "" {
			continue
		}
		profile.Properties = append(profile.Properties, PropertyInfo{
			IRI:    iri,
			Domain: row["domain"],
			Range:  row["range"],
		})
	}

	// Named graphs are optional context; a store that rejects the GRAPH
	// introspection still yields a usable profile.
	if graphs, err := p.store.Query(ctx, graphQuery); err == nil {
		for i := range graphs.Bindings {
			if g := graphs.Row(i)["g"]; g != "" {
				profile.Graphs = append(profile.Graphs, g)
			}
		}
	} else {
		p.logger.Debug("Named graph introspection failed", "error", err)
	}

	p.logger.Info("Schema profile built",
		"classes", len(profile.Classes),
		"properties", len(profile.Properties),
		"graphs", len(profile.Graphs),
		"duration", time.Since(start))

	return profile, nil
}

// SchemaTTL returns the Turtle serialization of the schema graph for prompt
// embedding, fetched once and cached for the profiler's lifetime.
func (p *Profiler) SchemaTTL(ctx context.Context) (string, error) {
	p.mu.RLock()
	if p.ttlFetched {
		ttl := p.cachedTTL
		p.mu.RUnlock()
		return ttl, nil
	}
	p.mu.RUnlock()

	result, err, _ := p.group.Do("schema-ttl", func() (any, error) {
		query := "CONSTRUCT { ?s ?p ?o } WHERE { ?s ?p ?o }"
		if p.graphURI != "" {
			query = fmt.Sprintf("CONSTRUCT { ?s ?p ?o } WHERE { GRAPH <%s> { ?s ?p ?o } }", p.graphURI)
		} else {
			p.logger.Warn("No schema graph configured, fetching TTL from all graphs")
		}

		ttl, err := p.store.Construct(ctx, query)
		if err != nil {
			return "", err
		}

		if p.ttlMaxChars > 0 && len(ttl) > p.ttlMaxChars {
			p.logger.Warn("Schema TTL truncated",
				"original_chars", len(ttl),
				"max_chars", p.ttlMaxChars)
			ttl = ttl[:p.ttlMaxChars]
		}
		return ttl, nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch schema ttl: %w", err)
	}

	ttl := result.(string)
	p.mu.Lock()
	p.cachedTTL = ttl
	p.ttlFetched = true
	p.mu.Unlock()

	return ttl, nil
}
