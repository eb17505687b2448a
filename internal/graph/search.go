// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/explainer-engine/internal/slug"
	"github.com/pdiddy/explainer-engine/pkg/types"
)

// Column weights for bm25 over (name, summary, body).
const bm25Weights = "10.0, 4.0, 1.0"

// exactMatchScore ranks an exact ID or name hit above any FTS score.
const exactMatchScore = 1000.0

// Search returns the single best concept for a free-text query. An exact
// match on concept ID or name wins; otherwise the top FTS5 hit ranked by
// bm25 is returned. ErrNoConcept is returned when nothing matches.
func (s *Store) Search(ctx context.Context, query string) (types.Concept, error) {
	results, err := s.SearchAll(ctx, query, 1)
	if err != nil {
		return types.Concept{}, err
	}
	if len(results) == 0 {
		return types.Concept{}, fmt.Errorf("searching %q: %w", query, ErrNoConcept)
	}
	return results[0], nil
}

// SearchAll returns up to limit concepts ranked by relevance. A limit of
// zero uses the store default.
func (s *Store) SearchAll(ctx context.Context, query string, limit int) ([]types.Concept, error) {
	if limit <= 0 {
		limit = s.maxResults
	}

	var results []types.Concept
	seen := make(map[string]bool)

	exact, err := s.exactMatch(ctx, query)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		results = append(results, *exact)
		seen[exact.ID] = true
	}

	match := ftsQuery(query)
	if match == "" {
		return results, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.summary, c.tags, bm25(concepts_fts, `+bm25Weights+`) AS rank
		 FROM concepts_fts
		 JOIN concepts c ON c.rowid = concepts_fts.rowid
		 WHERE concepts_fts MATCH ?
		 ORDER BY rank, c.id
		 LIMIT ?`,
		match, limit+1,
	)
	if err != nil {
		return nil, fmt.Errorf("querying graph: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c        types.Concept
			summary  sql.NullString
			tagsJSON sql.NullString
			rank     float64
		)
		if err := rows.Scan(&c.ID, &c.Name, &summary, &tagsJSON, &rank); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		c.Summary = summary.String
		if tagsJSON.Valid {
			json.Unmarshal([]byte(tagsJSON.String), &c.Tags)
		}
		// bm25 is lower-is-better and negative for matches.
		c.Score = -rank
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) exactMatch(ctx context.Context, query string) (*types.Concept, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}
	id := slug.Make(trimmed)

	var (
		c        types.Concept
		summary  sql.NullString
		tagsJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, summary, tags FROM concepts
		 WHERE id = ? OR lower(name) = lower(?)
		 ORDER BY id = ? DESC LIMIT 1`,
		id, trimmed, id,
	).Scan(&c.ID, &c.Name, &summary, &tagsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up exact match: %w", err)
	}
	c.Summary = summary.String
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &c.Tags)
	}
	c.Score = exactMatchScore
	return &c, nil
}

// ftsQuery turns free text into an FTS5 MATCH expression. Each word is
// quoted so user punctuation cannot be read as FTS syntax, and words are
// OR-ed so partial matches still rank.
func ftsQuery(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + strings.ToLower(w) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Retrieve loads the raw content for a concept: its body, its outgoing
// related concepts, and its sources. ErrNoConcept is returned when the
// concept ID is unknown.
func (s *Store) Retrieve(ctx context.Context, concept types.Concept) (types.RawContent, error) {
	var (
		name string
		body sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, body FROM concepts WHERE id = ?`, concept.ID,
	).Scan(&name, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RawContent{}, fmt.Errorf("retrieving %q: %w", concept.ID, ErrNoConcept)
	}
	if err != nil {
		return types.RawContent{}, fmt.Errorf("looking up concept: %w", err)
	}

	raw := types.RawContent{
		ConceptID: concept.ID,
		Title:     name,
		Body:      body.String,
	}

	raw.Related, err = s.related(ctx, concept.ID)
	if err != nil {
		return types.RawContent{}, err
	}

	raw.Sources, err = s.sources(ctx, concept.ID)
	if err != nil {
		return types.RawContent{}, err
	}

	return raw, nil
}

// related returns outgoing neighbours that exist in the graph. Edges to
// concepts that were never ingested are skipped.
func (s *Store) related(ctx context.Context, id string) ([]types.RelatedConcept, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.summary, c.tags, r.kind, r.note
		 FROM relations r
		 JOIN concepts c ON c.id = r.to_id
		 WHERE r.from_id = ?
		 ORDER BY CASE r.kind WHEN 'prerequisite' THEN 0 WHEN 'part-of' THEN 1 WHEN 'example' THEN 2 ELSE 3 END, c.name
		 LIMIT ?`,
		id, s.maxRelated,
	)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()

	var out []types.RelatedConcept
	for rows.Next() {
		var (
			rc       types.RelatedConcept
			summary  sql.NullString
			tagsJSON sql.NullString
			kind     string
			note     sql.NullString
		)
		if err := rows.Scan(&rc.ID, &rc.Name, &summary, &tagsJSON, &kind, &note); err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		rc.Summary = summary.String
		rc.Kind = types.RelationKind(kind)
		rc.Note = note.String
		if tagsJSON.Valid {
			json.Unmarshal([]byte(tagsJSON.String), &rc.Tags)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (s *Store) sources(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM sources WHERE concept_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Relations returns every edge in the graph ordered by source and target.
func (s *Store) Relations(ctx context.Context) ([]types.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, kind, note FROM relations ORDER BY from_id, to_id, kind`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()

	var out []types.Relation
	for rows.Next() {
		var (
			r    types.Relation
			kind string
			note sql.NullString
		)
		if err := rows.Scan(&r.From, &r.To, &kind, &note); err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		r.Kind = types.RelationKind(kind)
		r.Note = note.String
		out = append(out, r)
	}
	return out, rows.Err()
}
