// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/explainer-engine/internal/container"
	"github.com/pdiddy/explainer-engine/internal/format"
	"github.com/pdiddy/explainer-engine/internal/generate"
	"github.com/pdiddy/explainer-engine/internal/graph"
	"github.com/pdiddy/explainer-engine/internal/pipeline"
	"github.com/pdiddy/explainer-engine/internal/render"
	"github.com/pdiddy/explainer-engine/internal/secrets"
	"github.com/pdiddy/explainer-engine/internal/storage"
	"github.com/pdiddy/explainer-engine/pkg/types"
)

var explainCmd = &cobra.Command{
	Use:   "explain [query...]",
	Short: "Generate an explainer video for a query",
	Long: `Explain finds the concept in the knowledge graph that best matches the
query, asks Claude for slides and narration, renders them with Manim in a
docker or podman container, and stores the video under the query.

Concept files are re-indexed first unless --skip-ingest is given. With
--reuse, a video already stored for the exact same query is returned
without generating a new one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplain,
}

func runExplain(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query must not be blank")
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	skipIngest, _ := cmd.Flags().GetBool("skip-ingest")
	reuse, _ := cmd.Flags().GetBool("reuse")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewFileStore(cfg.Storage, storage.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	if reuse {
		rec, err := store.Lookup(ctx, query)
		if err == nil {
			logger.Info("reusing stored video", zap.String("id", rec.Video.ID))
			return printVideo(os.Stdout, rec.Video, jsonOutput)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	g, err := graph.NewStore(cfg.Graph)
	if err != nil {
		return err
	}
	defer g.Close()

	if !skipIngest {
		summary, err := g.Ingest(ctx, io.Discard)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("no concepts directory, searching the existing index", zap.Error(err))
		case err != nil:
			return err
		case summary.Changed():
			logger.Info("indexed concepts",
				zap.Int("indexed", summary.Indexed),
				zap.Int("updated", summary.Updated),
				zap.Int("failed", summary.Failed))
		}
	}

	if cfg.Generation.APIKey == "" {
		return fmt.Errorf("Claude API key not configured: write it to %s%s or set ANTHROPIC_API_KEY",
			secretsDir, secrets.AnthropicAPIKey)
	}

	rt, err := container.DetectRuntime()
	if err != nil {
		return err
	}
	renderer, err := render.NewManimRenderer(rt, cfg.Render, render.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("%w (pull it with: %s pull %s)", err, rt.Name(), cfg.Render.Image)
	}

	h := &pipeline.Handler{
		Graph:     g,
		Generator: generate.New(generate.NewClaudeBackend(cfg.Generation), cfg.Generation, generate.WithLogger(logger)),
		Formatter: format.New(cfg.Format),
		Renderer:  renderer,
		Storage:   store,
		Logger:    logger,
	}

	video, err := h.Handle(ctx, query)
	if err != nil {
		if errors.Is(err, graph.ErrNoConcept) {
			return fmt.Errorf("%w\nadd a concept file under %s and try again",
				err, filepath.Join(cfg.Graph.GraphDir, "concepts"))
		}
		return err
	}

	// The handler returns the rendered video; show where storage put it.
	if rec, err := store.Lookup(ctx, query); err == nil && rec.Video.ID == video.ID {
		video.Path = rec.Video.Path
	}
	return printVideo(os.Stdout, video, jsonOutput)
}

// printVideo writes v as indented JSON or as an aligned key/value listing.
func printVideo(w io.Writer, v types.Video, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	fmt.Fprintf(w, "%-10s  %s\n", "ID", v.ID)
	fmt.Fprintf(w, "%-10s  %s\n", "Topic", v.Topic)
	fmt.Fprintf(w, "%-10s  %s\n", "Path", v.Path)
	fmt.Fprintf(w, "%-10s  %d\n", "Slides", v.SlideCount)
	fmt.Fprintf(w, "%-10s  %s\n", "Duration", v.Duration.Round(time.Second))
	fmt.Fprintf(w, "%-10s  %s\n", "Size", humanBytes(v.SizeBytes))
	fmt.Fprintf(w, "%-10s  %s\n", "SHA-256", v.Checksum)
	fmt.Fprintf(w, "%-10s  %s\n", "Created", v.CreatedAt.Local().Format(time.RFC3339))
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	explainCmd.Flags().Bool("json", false, "print the video as JSON")
	explainCmd.Flags().Bool("skip-ingest", false, "do not re-index concept files before searching")
	explainCmd.Flags().Bool("reuse", false, "return the stored video for this exact query if there is one")
	explainCmd.Flags().String("model", "", "Claude model")
	explainCmd.Flags().Int("max-slides", 0, "maximum slides per video")
	explainCmd.Flags().String("image", "", "container image providing the manim CLI")
	explainCmd.Flags().String("quality", "", "manim quality: l, m, h, p or k")
	explainCmd.Flags().String("work-dir", "", "directory for render jobs")
	explainCmd.Flags().Bool("keep-work-dir", false, "keep render job directories")

	bindFlags(explainCmd, map[string]string{
		"generation.model":      "model",
		"generation.max_slides": "max-slides",
		"render.image":          "image",
		"render.quality":        "quality",
		"render.work_dir":       "work-dir",
		"render.keep_work_dir":  "keep-work-dir",
	}, false)

	rootCmd.AddCommand(explainCmd)
}
