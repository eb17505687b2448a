// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package generate turns retrieved concept content into a slide deck and a
// matching narration script by prompting a Generative AI backend.
package generate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/pdiddy/explainer-engine/pkg/types"
)

// ErrInvalidResponse is returned when the backend answers with content that
// cannot be turned into slides and narration.
var ErrInvalidResponse = errors.New("invalid generation response")

// ErrNotConfigured marks backend errors caused by missing configuration.
// Generate returns them at once without retrying.
var ErrNotConfigured = errors.New("generator not configured")

// Backend abstracts the Generative AI API so tests can supply a mock.
// Implementations send one prompt and return the parsed response.
type Backend interface {
	Complete(ctx context.Context, prompt string) (Response, error)
}

// Response is the structured answer expected from the backend: one
// narration paragraph per slide, in the same order.
type Response struct {
	Slides    []types.Slide `json:"slides" yaml:"slides" validate:"required,min=1,dive"`
	Narration []string      `json:"narration" yaml:"narration" validate:"required,min=1,dive,required"`
}

// backoffBase controls the base duration for exponential backoff between
// attempts. Tests override this to avoid real sleeps.
var backoffBase = time.Second

// consecutiveFailuresToTrip opens the breaker after this many failed calls
// in a row.
const consecutiveFailuresToTrip = 5

// Generator produces a SlideSet and Script from RawContent.
type Generator struct {
	backend    Backend
	breaker    *gobreaker.CircuitBreaker
	validate   *validator.Validate
	logger     *zap.Logger
	maxRetries int
	maxSlides  int
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger used for attempt and breaker events.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Generator around backend using cfg for retry, slide and
// breaker limits.
func New(backend Backend, cfg types.GenerationConfig, opts ...Option) *Generator {
	g := &Generator{
		backend:    backend,
		validate:   validator.New(),
		logger:     zap.NewNop(),
		maxRetries: cfg.MaxRetries,
		maxSlides:  cfg.MaxSlides,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxRetries < 0 {
		g.maxRetries = 0
	}
	if g.maxSlides <= 0 {
		g.maxSlides = 8
	}

	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := g.logger
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "generator",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailuresToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Neither a cancelled caller nor missing config says anything
			// about backend health.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrNotConfigured)
		},
	})

	return g
}

// Generate prompts the backend with raw and returns the slides and the
// narration script. Failed or invalid responses are retried with
// exponential backoff up to the configured limit. An open circuit breaker
// fails immediately.
func (g *Generator) Generate(ctx context.Context, raw types.RawContent) (types.SlideSet, types.Script, error) {
	prompt, err := renderPrompt(raw, g.maxSlides)
	if err != nil {
		return types.SlideSet{}, types.Script{}, fmt.Errorf("rendering prompt: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return types.SlideSet{}, types.Script{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, err := g.breaker.Execute(func() (interface{}, error) {
			return g.backend.Complete(ctx, prompt)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return types.SlideSet{}, types.Script{}, fmt.Errorf("generator unavailable: %w", err)
			}
			if ctx.Err() != nil {
				return types.SlideSet{}, types.Script{}, ctx.Err()
			}
			if errors.Is(err, ErrNotConfigured) {
				return types.SlideSet{}, types.Script{}, err
			}
			g.logger.Warn("generation attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
			lastErr = err
			continue
		}

		resp := out.(Response)
		if err := g.check(resp); err != nil {
			g.logger.Warn("generation response rejected", zap.Int("attempt", attempt+1), zap.Error(err))
			lastErr = err
			continue
		}

		slides, script := g.build(raw, resp)
		g.logger.Debug("generated content",
			zap.String("concept", raw.ConceptID),
			zap.Int("slides", len(slides.Slides)),
			zap.Int("attempts", attempt+1))
		return slides, script, nil
	}

	return types.SlideSet{}, types.Script{}, fmt.Errorf("after %d attempts: %w", g.maxRetries+1, lastErr)
}

// check validates a backend response.
func (g *Generator) check(resp Response) error {
	if err := g.validate.Struct(resp); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(resp.Narration) != len(resp.Slides) {
		return fmt.Errorf("%w: %d slides but %d narration paragraphs",
			ErrInvalidResponse, len(resp.Slides), len(resp.Narration))
	}
	for i, s := range resp.Slides {
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("%w: slide %d has a blank title", ErrInvalidResponse, i+1)
		}
	}
	return nil
}

// build converts a validated response into the SlideSet and Script pair,
// keeping at most maxSlides slides.
func (g *Generator) build(raw types.RawContent, resp Response) (types.SlideSet, types.Script) {
	n := len(resp.Slides)
	if n > g.maxSlides {
		n = g.maxSlides
	}

	slides := types.SlideSet{Topic: raw.Title, Slides: make([]types.Slide, n)}
	script := types.Script{Topic: raw.Title, Segments: make([]types.ScriptSegment, n)}
	for i := 0; i < n; i++ {
		slides.Slides[i] = resp.Slides[i]
		script.Segments[i] = types.ScriptSegment{SlideIndex: i, Narration: resp.Narration[i]}
	}
	return slides, script
}
