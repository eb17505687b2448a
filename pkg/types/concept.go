// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the explainer-engine pipeline:
// knowledge graph concepts, generated slides and narration, formatted
// artifacts, rendered videos, and stage configuration.
package types

// RelationKind labels a directed edge between two concepts.
type RelationKind string

const (
	RelationPrerequisite RelationKind = "prerequisite"
	RelationPartOf       RelationKind = "part-of"
	RelationExample      RelationKind = "example"
	RelationRelated      RelationKind = "related"
)

// Concept is a knowledge graph entity found by searching for a query.
type Concept struct {
	// ID is a stable slug derived from the concept name (e.g. "photosynthesis").
	ID string `json:"id" yaml:"id"`

	// Name is the display name.
	Name string `json:"name" yaml:"name"`

	// Summary is a one or two sentence description.
	Summary string `json:"summary" yaml:"summary"`

	// Tags are lowercase, hyphenated topic labels.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Score is the search relevance. Higher is better; zero when the
	// concept was not produced by a search.
	Score float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// Relation is a directed edge from one concept to another.
type Relation struct {
	From string       `json:"from" yaml:"from"`
	To   string       `json:"to" yaml:"to"`
	Kind RelationKind `json:"kind" yaml:"kind"`
	Note string       `json:"note,omitempty" yaml:"note,omitempty"`
}

// RelatedConcept is a neighbour of a retrieved concept together with the
// edge that links them.
type RelatedConcept struct {
	Concept `yaml:",inline"`
	Kind    RelationKind `json:"kind" yaml:"kind"`
	Note    string       `json:"note,omitempty" yaml:"note,omitempty"`
}

// RawContent is the unstructured material retrieved for a concept. It is
// the input to content generation.
type RawContent struct {
	ConceptID string           `json:"concept_id" yaml:"concept_id"`
	Title     string           `json:"title" yaml:"title"`
	Body      string           `json:"body" yaml:"body"`
	Related   []RelatedConcept `json:"related,omitempty" yaml:"related,omitempty"`
	Sources   []string         `json:"sources,omitempty" yaml:"sources,omitempty"`
}
