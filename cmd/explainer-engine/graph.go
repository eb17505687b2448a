// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/explainer-engine/internal/graph"
	"github.com/pdiddy/explainer-engine/pkg/types"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Manage the knowledge graph (ingest, search, retrieve, export)",
	Long: `Graph manages the local SQLite knowledge graph built from concept files
under <graph-dir>/concepts/. Each YAML file describes one concept, its
related concepts, and its sources.`,
}

// --- ingest subcommand ---

var graphIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index concept files into the knowledge graph",
	Long: `Ingest reads concept YAML files from <graph-dir>/concepts/, indexes them
into a SQLite database with FTS5, and writes an export file. Unchanged
files are skipped on subsequent runs. With --watch, ingest keeps running
and re-indexes whenever a concept file changes.`,
	RunE: runGraphIngest,
}

func runGraphIngest(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")

	store, err := openGraph()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := store.Ingest(ctx, os.Stdout)
	if err != nil {
		return err
	}
	if watch {
		return store.Watch(ctx, os.Stdout, logger)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d concept file(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- search subcommand ---

var graphSearchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Rank concepts against a free-text query",
	Long: `Search shows the concepts the explain command would consider for a
query, best first. An exact concept ID or name match always ranks first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGraphSearch,
}

func runGraphSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openGraph()
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.SearchAll(context.Background(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}
	return formatSearchOutput(results, jsonOutput)
}

func formatSearchOutput(results []types.Concept, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No concepts found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-24s  %-24s  %-8s  %s\n", "Rank", "ID", "Name", "Score", "Summary")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for i, c := range results {
		fmt.Fprintf(os.Stdout, "%-4d  %-24s  %-24s  %-8.2f  %s\n",
			i+1, clip(c.ID, 24), clip(c.Name, 24), c.Score, clip(c.Summary, 40))
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- retrieve subcommand ---

var graphRetrieveCmd = &cobra.Command{
	Use:   "retrieve <concept-id>",
	Short: "Show the raw content handed to the generator for a concept",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphRetrieve,
}

func runGraphRetrieve(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openGraph()
	if err != nil {
		return err
	}
	defer store.Close()

	raw, err := store.Retrieve(context.Background(), types.Concept{ID: args[0]})
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(raw)
	}

	fmt.Printf("# %s (%s)\n\n%s\n", raw.Title, raw.ConceptID, strings.TrimSpace(raw.Body))
	if len(raw.Related) > 0 {
		fmt.Println("\nRelated:")
		for _, r := range raw.Related {
			fmt.Printf("  - %s [%s] %s\n", r.Name, r.Kind, r.Summary)
		}
	}
	if len(raw.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range raw.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	return nil
}

// --- export subcommand ---

var graphExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the knowledge graph to YAML or JSON",
	Long: `Export writes every concept with its relations and sources to
<graph-dir>/index/export.yaml or export.json.`,
	RunE: runGraphExport,
}

func runGraphExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openGraph()
	if err != nil {
		return err
	}
	defer store.Close()

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(context.Background()); err != nil {
			return err
		}
		fmt.Println("Exported to", store.ExportPath("yaml"))
	case "json":
		if err := store.ExportJSON(context.Background()); err != nil {
			return err
		}
		fmt.Println("Exported to", store.ExportPath("json"))
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	return nil
}

// --- shared helpers ---

func openGraph() (*graph.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return graph.NewStore(cfg.Graph)
}

// clip shortens s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

func init() {
	graphIngestCmd.Flags().Bool("watch", false, "keep running and re-index on file changes")

	graphSearchCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	graphSearchCmd.Flags().Bool("json", false, "output results as JSON")

	graphRetrieveCmd.Flags().Bool("json", false, "output raw content as JSON")

	graphExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	graphCmd.AddCommand(graphIngestCmd)
	graphCmd.AddCommand(graphSearchCmd)
	graphCmd.AddCommand(graphRetrieveCmd)
	graphCmd.AddCommand(graphExportCmd)

	rootCmd.AddCommand(graphCmd)
}
