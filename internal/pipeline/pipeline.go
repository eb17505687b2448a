// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline turns a free-text query into a stored explainer video.
// The Handler runs a fixed sequence of stages, each delegated to a
// collaborator: search, retrieve, generate, format, render, save.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/explainer-engine/pkg/types"
)

// Stage names, in execution order.
const (
	StageSearch   = "search"
	StageRetrieve = "retrieve"
	StageGenerate = "generate"
	StageFormat   = "format"
	StageRender   = "render"
	StageSave     = "save"
)

// KnowledgeGraph finds the concept a query is about and the material
// behind it.
type KnowledgeGraph interface {
	Search(ctx context.Context, query string) (types.Concept, error)
	Retrieve(ctx context.Context, concept types.Concept) (types.RawContent, error)
}

// ContentGenerator writes slides and narration from raw material.
type ContentGenerator interface {
	Generate(ctx context.Context, raw types.RawContent) (types.SlideSet, types.Script, error)
}

// Formatter normalizes generated content for rendering.
type Formatter interface {
	FormatSlides(slides types.SlideSet) types.FormattedSlideSet
	FormatScript(script types.Script) types.FormattedScript
}

// Renderer produces a video from formatted slides and narration.
type Renderer interface {
	Render(ctx context.Context, slides types.FormattedSlideSet, script types.FormattedScript) (types.Video, error)
}

// Storage persists a video under the query that produced it.
type Storage interface {
	Save(ctx context.Context, video types.Video, query string) error
}

// StageError reports which stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Handler answers queries with videos.
type Handler struct {
	Graph     KnowledgeGraph
	Generator ContentGenerator
	Formatter Formatter
	Renderer  Renderer
	Storage   Storage
	Logger    *zap.Logger
}

// Handle runs every stage for query in order and returns the saved video.
// The first failing stage stops the run; its error is returned as a
// *StageError and no later stage is called. The query is passed to Save
// exactly as received.
func (h *Handler) Handle(ctx context.Context, query string) (types.Video, error) {
	log := h.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("query", query))
	start := time.Now()

	var concept types.Concept
	if err := h.stage(ctx, log, StageSearch, func() (err error) {
		concept, err = h.Graph.Search(ctx, query)
		return err
	}); err != nil {
		return types.Video{}, err
	}
	log = log.With(zap.String("concept", concept.ID))

	var raw types.RawContent
	if err := h.stage(ctx, log, StageRetrieve, func() (err error) {
		raw, err = h.Graph.Retrieve(ctx, concept)
		return err
	}); err != nil {
		return types.Video{}, err
	}

	var (
		slides types.SlideSet
		script types.Script
	)
	if err := h.stage(ctx, log, StageGenerate, func() (err error) {
		slides, script, err = h.Generator.Generate(ctx, raw)
		return err
	}); err != nil {
		return types.Video{}, err
	}

	var (
		formattedSlides types.FormattedSlideSet
		formattedScript types.FormattedScript
	)
	if err := h.stage(ctx, log, StageFormat, func() error {
		formattedSlides = h.Formatter.FormatSlides(slides)
		formattedScript = h.Formatter.FormatScript(script)
		return nil
	}); err != nil {
		return types.Video{}, err
	}

	var video types.Video
	if err := h.stage(ctx, log, StageRender, func() (err error) {
		video, err = h.Renderer.Render(ctx, formattedSlides, formattedScript)
		return err
	}); err != nil {
		return types.Video{}, err
	}

	if err := h.stage(ctx, log, StageSave, func() error {
		return h.Storage.Save(ctx, video, query)
	}); err != nil {
		return types.Video{}, err
	}

	log.Info("query answered",
		zap.String("video", video.ID),
		zap.Int("slides", video.SlideCount),
		zap.Duration("elapsed", time.Since(start)))
	return video, nil
}

// stage runs fn as the named stage. A cancelled context stops the run
// before fn is called.
func (h *Handler) stage(ctx context.Context, log *zap.Logger, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Err: err}
	}
	start := time.Now()
	if err := fn(); err != nil {
		log.Error("stage failed", zap.String("stage", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return &StageError{Stage: name, Err: err}
	}
	log.Debug("stage done", zap.String("stage", name), zap.Duration("elapsed", time.Since(start)))
	return nil
}
