// Package schema profiles the triple store's vocabulary so the SPARQL
// planner can be prompted with real classes, properties and graphs instead
// of guessing IRIs.
package schema

import (
	"encoding/json"
	"time"
)

// ClassInfo describes one class observed in the store.
type ClassInfo struct {
	IRI           string `json:"iri"`
	InstanceCount int    `json:"instance_count,omitempty"`
}

// PropertyInfo describes one property observed in the store, with optional
// domain/range hints.
type PropertyInfo struct {
	IRI    string `json:"iri"`
	Domain string `json:"domain,omitempty"`
	Range  string `json:"range,omitempty"`
}

// Profile is a compact description of the store's schema. It is immutable
// once built; the profiler replaces the whole value on refresh.
type Profile struct {
	Classes    []ClassInfo    `json:"classes"`
	Properties []PropertyInfo `json:"properties"`
	Graphs     []string       `json:"graphs,omitempty"`
	BuiltAt    time.Time      `json:"built_at"`

	// Warning is set when the profile was built empty because the store
	// was unreachable. Schema context is an aid to the planner, not a
	// correctness requirement, so requests proceed with it.
	Warning string `json:"warning,omitempty"`
}

// EmptyProfile returns a profile carrying only a warning, used when the
// store could not be introspected.
func EmptyProfile(warning string) *Profile {
	return &Profile{
		Classes:    []ClassInfo{},
		Properties: []PropertyInfo{},
		BuiltAt:    time.Now(),
		Warning:    warning,
	}
}

// IsEmpty reports whether the profile carries no schema information.
func (p *Profile) IsEmpty() bool {
	return len(p.Classes) == 0 && len(p.Properties) == 0 && len(p.Graphs) == 0
}

// Age returns how long ago the profile was built.
func (p *Profile) Age() time.Duration {
	return time.Since(p.BuiltAt)
}

// Summary serializes the profile as compact JSON for prompt embedding.
func (p *Profile) Summary() string {
	data, err := json.Marshal(struct {
		Classes    []ClassInfo    `json:"classes"`
		Properties []PropertyInfo `json:"properties"`
		Graphs     []string       `json:"graphs,omitempty"`
		Warning    string         `json:"warning,omitempty"`
	}{
		Classes:    p.Classes,
		Properties: p.Properties,
		Graphs:     p.Graphs,
		Warning:    p.Warning,
	})
	if err != nil {
		return "{}"
	}
	return string(data)
}
