// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/explainer-engine/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir := t.TempDir()
	graphDir := filepath.Join(tmpDir, "graph")

	require.NoError(t, os.MkdirAll(filepath.Join(graphDir, conceptsDir), 0o755))

	store, err := NewStore(types.GraphConfig{GraphDir: graphDir, MaxResults: 20, MaxRelated: 8})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, graphDir
}

func writeConcept(t *testing.T, graphDir, file string, cf ConceptFile) {
	t.Helper()
	data, err := yaml.Marshal(&cf)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(graphDir, conceptsDir, file), data, 0o644))
}

func sampleGraph(t *testing.T, graphDir string) {
	t.Helper()
	writeConcept(t, graphDir, "photosynthesis.yaml", ConceptFile{
		Name:    "Photosynthesis",
		Summary: "How plants turn light into chemical energy.",
		Body:    "Photosynthesis converts light energy, water and carbon dioxide into glucose and oxygen.",
		Tags:    []string{"biology", "energy"},
		Related: []RelationFile{
			{To: "Chlorophyll", Kind: types.RelationPartOf, Note: "absorbs light"},
			{To: "light-dependent-reactions", Kind: types.RelationPrerequisite},
			{To: "Calvin Cycle"},
			{To: "never-ingested"},
		},
		Sources: []string{"https://example.org/photosynthesis", "https://example.org/plants"},
	})
	writeConcept(t, graphDir, "chlorophyll.yaml", ConceptFile{
		Name:    "Chlorophyll",
		Summary: "Green pigment that absorbs light.",
		Body:    "Chlorophyll absorbs mostly blue and red light.",
		Tags:    []string{"biology", "pigment"},
	})
	writeConcept(t, graphDir, "ldr.yaml", ConceptFile{
		ID:      "light-dependent-reactions",
		Name:    "Light-dependent reactions",
		Summary: "First stage of photosynthesis in the thylakoid membrane.",
		Body:    "Light splits water, releasing oxygen and producing ATP and NADPH.",
	})
	writeConcept(t, graphDir, "calvin.yaml", ConceptFile{
		Name:    "Calvin Cycle",
		Summary: "Carbon fixation stage.",
		Body:    "The Calvin cycle uses ATP and NADPH to fix carbon dioxide into sugar.",
	})
}

func ingest(t *testing.T, store *Store) (IngestSummary, string) {
	t.Helper()
	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), &buf)
	require.NoError(t, err)
	return summary, buf.String()
}

// --- schema ---

func TestNewStoreCreatesSchema(t *testing.T) {
	store, _ := testSetup(t)

	for _, table := range []string{"concepts", "relations", "sources", "indexing_status", "concepts_fts"} {
		var count int
		err := store.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?`, table,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}
}

func TestNewStoreReopen(t *testing.T) {
	store, graphDir := testSetup(t)
	sampleGraph(t, graphDir)
	ingest(t, store)
	require.NoError(t, store.Close())

	reopened, err := NewStore(types.GraphConfig{GraphDir: graphDir})
	require.NoError(t, err)
	defer reopened.Close()

	c, err := reopened.Search(context.Background(), "photosynthesis")
	require.NoError(t, err)
	assert.Equal(t, "photosynthesis", c.ID)
}

// --- ingest ---

func TestIngestIncremental(t *testing.T) {
	store, graphDir := testSetup(t)
	sampleGraph(t, graphDir)

	summary, out := ingest(t, store)
	assert.Equal(t, 4, summary.Indexed)
	assert.Equal(t, 0, summary.Failed)
	assert.Contains(t, out, "indexing photosynthesis.yaml (photosynthesis)")
	assert.FileExists(t, store.ExportPath("yaml"))

	summary, out = ingest(t, store)
	assert.Equal(t, 4, summary.Skipped)
	assert.False(t, summary.Changed())
	assert.Contains(t, out, "skipped chlorophyll.yaml")

	// Touch one file with a new body and a later mod time.
	writeConcept(t, graphDir, "chlorophyll.yaml", ConceptFile{
		Name: "Chlorophyll",
		Body: "Chlorophyll reflects green light.",
	})
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(graphDir, conceptsDir, "chlorophyll.yaml"), later, later))

	summary, _ = ingest(t, store)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 4, summary.Total())

	raw, err := store.Retrieve(context.Background(), types.Concept{ID: "chlorophyll"})
	require.NoError(t, err)
	assert.Equal(t, "Chlorophyll reflects green light.", raw.Body)
}

func TestIngestBadFiles(t *testing.T) {
	store, graphDir := testSetup(t)
	dir := filepath.Join(graphDir, conceptsDir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [unclosed"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "noname.yaml"), []byte("summary: nothing\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	writeConcept(t, graphDir, "ok.yaml", ConceptFile{Name: "Osmosis", Body: "Water moves across a membrane."})

	summary, out := ingest(t, store)
	assert.Equal(t, 1, summary.Indexed)
	assert.Equal(t, 2, summary.Failed)
	assert.Contains(t, out, "failed  broken.yaml")
	assert.Contains(t, out, "failed  noname.yaml")
	assert.NotContains(t, out, "notes.txt")
}

func TestIngestMissingDirectory(t *testing.T) {
	store, err := NewStore(types.GraphConfig{GraphDir: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Ingest(context.Background(), &strings.Builder{})
	assert.Error(t, err)
}

func TestIngestRenamedConcept(t *testing.T) {
	store, graphDir := testSetup(t)
	writeConcept(t, graphDir, "topic.yaml", ConceptFile{Name: "Mitosis", Body: "Cell division."})
	ingest(t, store)

	writeConcept(t, graphDir, "topic.yaml", ConceptFile{Name: "Meiosis", Body: "Reductive cell division."})
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(graphDir, conceptsDir, "topic.yaml"), later, later))
	ingest(t, store)

	_, err := store.Retrieve(context.Background(), types.Concept{ID: "mitosis"})
	assert.ErrorIs(t, err, ErrNoConcept)
	_, err = store.Retrieve(context.Background(), types.Concept{ID: "meiosis"})
	assert.NoError(t, err)
}

func TestIngestRemovedFile(t *testing.T) {
	store, graphDir := testSetup(t)
	writeConcept(t, graphDir, "osmosis.yaml", ConceptFile{
		Name:    "Osmosis",
		Body:    "Water moves across a membrane.",
		Related: []RelationFile{{To: "Diffusion", Kind: types.RelationPrerequisite}},
		Sources: []string{"https://example.org/osmosis"},
	})
	writeConcept(t, graphDir, "diffusion.yaml", ConceptFile{Name: "Diffusion", Body: "Particles spread out."})
	_, err := store.Put(context.Background(), ConceptFile{Name: "Turgor", Body: "Pressure of water in a cell."})
	require.NoError(t, err)
	ingest(t, store)

	require.NoError(t, os.Remove(filepath.Join(graphDir, conceptsDir, "osmosis.yaml")))

	summary, out := ingest(t, store)
	assert.Equal(t, 1, summary.Removed)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, summary.Changed())
	assert.Contains(t, out, "removed osmosis.yaml (osmosis)")
	assert.Contains(t, out, "removed: 1")

	_, err = store.Search(context.Background(), "osmosis")
	assert.ErrorIs(t, err, ErrNoConcept)
	_, err = store.Retrieve(context.Background(), types.Concept{ID: "osmosis"})
	assert.ErrorIs(t, err, ErrNoConcept)

	rels, err := store.Relations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rels)

	_, err = store.Retrieve(context.Background(), types.Concept{ID: "diffusion"})
	assert.NoError(t, err, "files still present are kept")
	_, err = store.Retrieve(context.Background(), types.Concept{ID: "turgor"})
	assert.NoError(t, err, "concepts added with Put are kept")

	summary, _ = ingest(t, store)
	assert.Equal(t, 0, summary.Removed)
}

func TestIngestRemovedFileKeepsConceptDefinedElsewhere(t *testing.T) {
	store, graphDir := testSetup(t)
	writeConcept(t, graphDir, "a.yaml", ConceptFile{Name: "Osmosis", Body: "First copy."})
	writeConcept(t, graphDir, "b.yaml", ConceptFile{Name: "Osmosis", Body: "Second copy."})
	ingest(t, store)

	require.NoError(t, os.Remove(filepath.Join(graphDir, conceptsDir, "a.yaml")))
	summary, _ := ingest(t, store)
	assert.Equal(t, 0, summary.Removed)

	_, err := store.Retrieve(context.Background(), types.Concept{ID: "osmosis"})
	assert.NoError(t, err)
}

// --- search ---

func TestSearchExactMatchWins(t *testing.T) {
	store, graphDir := testSetup(t)
	sampleGraph(t, graphDir)
	ingest(t, store)

	c, err := store.Search(context.Background(), "photosynthesis")
	require.NoError(t, err)
	assert.Equal(t, "photosynthesis", c.ID)
	assert.Equal(t, "Photosynthesis", c.Name)
	assert.Equal(t, exactMatchScore, c.Score)
	assert.Equal(t, []string{"biology", "energy"}, c.Tags)

	c, err = store.Search(context.Background(), "Calvin cycle")
	require.NoError(t, err)
	assert.Equal(t, "calvin-cycle", c.ID)
}

func TestSearchFullText(t *testing.T) {
	store, graphDir := testSetup(t)
	sampleGraph(t, graphDir)
	ingest(t, store)

	c, err := store.Search(context.Background(), "pigment absorbs light")
	require.NoError(t, err)
	assert.Equal(t, "chlorophyll", c.ID)
	assert.Greater(t, c.Score, 0.0)

	all, err := store.SearchAll(context.Background(), "NADPH", 0)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	assert.ElementsMatch(t, []string{"light-dependent-reactions", "calvin-cycle"}, ids)
}

func TestSearchPunctuationIsSafe(t *testing.T) {
	store, graphDir := testSetup(t)
	sampleGraph(t, graphDir)
	ingest(t, store)

	c, err := store.Search(context.Background(), `what's "chlorophyll" AND (NOT*)?`)
	require.NoError(t, err)
	assert.Equal(t, "chlorophyll", c.ID)
}

func TestSearchNoMatch(t *testing.T) {
	store, graphDir := testSetup(t)
	sampleGraph(t, graphDir)
	ingest(t, store)

	for _, q := range []string{"quantum chromodynamics", "", "   ", "?!"} {
		_, err := store.Search(context.Background(), q)
		assert.ErrorIs(t, err, ErrNoConcept, "query %q", q)
	}
}

func TestSearchAllLimit(t *testing.T) {
	store, graphDir := testSetup(t)
	sampleGraph(t, graphDir)
	ingest(t, store)

	results, err := store.SearchAll(context.Background(), "photosynthesis light", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = store.SearchAll(context.Background(), "chlorophyll pigment", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chlorophyll", results[0].ID)
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"light" OR "energy"`, ftsQuery("Light, energy!"))
	assert.Equal(t, "", ftsQuery("?? --"))
}

// --- retrieve ---

func TestRetrieve(t *testing.T) {
	store, graphDir := testSetup(t)
	sampleGraph(t, graphDir)
	ingest(t, store)

	raw, err := store.Retrieve(context.Background(), types.Concept{ID: "photosynthesis"})
	require.NoError(t, err)

	assert.Equal(t, "photosynthesis", raw.ConceptID)
	assert.Equal(t, "Photosynthesis", raw.Title)
	assert.Contains(t, raw.Body, "glucose")
	assert.Equal(t, []string{"https://example.org/photosynthesis", "https://example.org/plants"}, raw.Sources)

	require.Len(t, raw.Related, 3, "dangling edge must be skipped")
	assert.Equal(t, "light-dependent-reactions", raw.Related[0].ID)
	assert.Equal(t, types.RelationPrerequisite, raw.Related[0].Kind)
	assert.Equal(t, "chlorophyll", raw.Related[1].ID)
	assert.Equal(t, "absorbs light", raw.Related[1].Note)
	assert.Equal(t, "Green pigment that absorbs light.", raw.Related[1].Summary)
	assert.Equal(t, types.RelationRelated, raw.Related[2].Kind)
}

func TestRetrieveUnknown(t *testing.T) {
	store, _ := testSetup(t)
	_, err := store.Retrieve(context.Background(), types.Concept{ID: "nope"})
	assert.ErrorIs(t, err, ErrNoConcept)
}

func TestRetrieveMaxRelated(t *testing.T) {
	tmp := t.TempDir()
	store, err := NewStore(types.GraphConfig{GraphDir: tmp, MaxRelated: 1})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.Put(ctx, ConceptFile{Name: "A", Related: []RelationFile{{To: "B"}, {To: "C"}}})
	require.NoError(t, err)
	_, err = store.Put(ctx, ConceptFile{Name: "B"})
	require.NoError(t, err)
	_, err = store.Put(ctx, ConceptFile{Name: "C"})
	require.NoError(t, err)

	raw, err := store.Retrieve(ctx, types.Concept{ID: "a"})
	require.NoError(t, err)
	assert.Len(t, raw.Related, 1)
}

// --- export ---

func TestExportJSON(t *testing.T) {
	store, graphDir := testSetup(t)
	sampleGraph(t, graphDir)
	ingest(t, store)

	require.NoError(t, store.ExportJSON(context.Background()))

	data, err := os.ReadFile(store.ExportPath("json"))
	require.NoError(t, err)

	var entries []ExportEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 4)
	assert.Equal(t, "calvin-cycle", entries[0].ID)

	var photo ExportEntry
	for _, e := range entries {
		if e.ID == "photosynthesis" {
			photo = e
		}
	}
	assert.Len(t, photo.Related, 4, "export keeps dangling edges")
	assert.Len(t, photo.Sources, 2)
}

// --- watch ---

func TestWatchReingests(t *testing.T) {
	WatchDebounce = 20 * time.Millisecond
	store, graphDir := testSetup(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx, &strings.Builder{}, nil) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeConcept(t, graphDir, "osmosis.yaml", ConceptFile{Name: "Osmosis", Body: "Water crosses membranes."})

	require.Eventually(t, func() bool {
		_, err := store.Search(context.Background(), "osmosis")
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
