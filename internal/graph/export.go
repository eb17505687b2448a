// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportEntry holds one concept with its edges and sources for export.
type ExportEntry struct {
	ID      string       `json:"id" yaml:"id"`
	Name    string       `json:"name" yaml:"name"`
	Summary string       `json:"summary" yaml:"summary"`
	Body    string       `json:"body" yaml:"body"`
	Tags    []string     `json:"tags" yaml:"tags"`
	Related []ExportEdge `json:"related,omitempty" yaml:"related,omitempty"`
	Sources []string     `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// ExportEdge is an outgoing relation in an export entry.
type ExportEdge struct {
	To   string `json:"to" yaml:"to"`
	Kind string `json:"kind" yaml:"kind"`
	Note string `json:"note,omitempty" yaml:"note,omitempty"`
}

// ExportYAML writes the whole graph to graphDir/index/export.yaml.
func (s *Store) ExportYAML(ctx context.Context) error {
	entries, err := s.Export(ctx)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(s.ExportPath("yaml"), data, 0o644)
}

// ExportJSON writes the whole graph to graphDir/index/export.json.
func (s *Store) ExportJSON(ctx context.Context) error {
	entries, err := s.Export(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(s.ExportPath("json"), data, 0o644)
}

// ExportPath returns the export file path for the given extension.
func (s *Store) ExportPath(ext string) string {
	return filepath.Join(s.graphDir, indexDir, "export."+ext)
}

// Export returns every concept ordered by ID, with edges and sources.
func (s *Store) Export(ctx context.Context) ([]ExportEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, summary, body, tags FROM concepts ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	var entries []ExportEntry
	for rows.Next() {
		var (
			e        ExportEntry
			summary  sql.NullString
			body     sql.NullString
			tagsJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Name, &summary, &body, &tagsJSON); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.Summary = summary.String
		e.Body = body.String
		if tagsJSON.Valid {
			json.Unmarshal([]byte(tagsJSON.String), &e.Tags)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	relations, err := s.Relations(ctx)
	if err != nil {
		return nil, err
	}
	byFrom := make(map[string][]ExportEdge)
	for _, r := range relations {
		byFrom[r.From] = append(byFrom[r.From], ExportEdge{To: r.To, Kind: string(r.Kind), Note: r.Note})
	}

	for i := range entries {
		entries[i].Related = byFrom[entries[i].ID]
		srcs, err := s.sources(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Sources = srcs
	}

	return entries, nil
}
