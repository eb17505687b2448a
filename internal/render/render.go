// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render turns formatted slides and narration into a video by
// generating a Manim scene and running the Manim CLI in a container.
package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/explainer-engine/internal/container"
	"github.com/pdiddy/explainer-engine/pkg/types"
)

const (
	videoFormat   = "mp4"
	sceneFile     = "scene.py"
	narrationFile = "narration.txt"

	// containerDir is where the job directory is mounted inside the container.
	containerDir = "/manim"

	// stderrTail bounds how much container output is quoted in errors.
	stderrTail = 2048
)

var (
	// ErrNoSlides is returned when there is nothing to render.
	ErrNoSlides = errors.New("no slides to render")

	// ErrNoOutput is returned when Manim exits cleanly but no video is found.
	ErrNoOutput = errors.New("manim produced no video")
)

// ManimRenderer renders videos with the Manim CLI inside a container.
type ManimRenderer struct {
	rt       container.Runtime
	image    string
	workDir  string
	quality  string
	keepWork bool
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a ManimRenderer.
type Option func(*ManimRenderer)

// WithLogger sets the logger used for render events.
func WithLogger(l *zap.Logger) Option {
	return func(r *ManimRenderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewManimRenderer returns a renderer that runs cfg.Image on rt. It fails
// when the image is not available locally.
func NewManimRenderer(rt container.Runtime, cfg types.RenderConfig, opts ...Option) (*ManimRenderer, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("render image not configured")
	}
	if err := rt.ImageExists(cfg.Image); err != nil {
		return nil, fmt.Errorf("checking render image: %w", err)
	}

	r := &ManimRenderer{
		rt:       rt,
		image:    cfg.Image,
		workDir:  cfg.WorkDir,
		quality:  cfg.Quality,
		keepWork: cfg.KeepWorkDir,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workDir == "" {
		r.workDir = filepath.Join(os.TempDir(), "explainer-engine")
	}
	if r.quality == "" {
		r.quality = "m"
	}
	return r, nil
}

// Render writes the scene and narration for one job, runs Manim, and
// returns the produced video. The video file is left at
// <work-dir>/<video-id>.mp4; the job directory is removed unless
// configured otherwise.
func (r *ManimRenderer) Render(ctx context.Context, slides types.FormattedSlideSet, script types.FormattedScript) (types.Video, error) {
	if len(slides.Slides) == 0 {
		return types.Video{}, ErrNoSlides
	}

	workDir, err := filepath.Abs(r.workDir)
	if err != nil {
		return types.Video{}, fmt.Errorf("resolving work dir: %w", err)
	}
	id := uuid.NewString()
	jobDir := filepath.Join(workDir, id)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return types.Video{}, fmt.Errorf("creating job dir: %w", err)
	}
	if !r.keepWork {
		defer os.RemoveAll(jobDir)
	}

	if err := writeFile(filepath.Join(jobDir, sceneFile), func(w io.Writer) error {
		return writeScene(w, slides, script)
	}); err != nil {
		return types.Video{}, fmt.Errorf("writing scene: %w", err)
	}
	if err := writeFile(filepath.Join(jobDir, narrationFile), func(w io.Writer) error {
		return writeNarration(w, script)
	}); err != nil {
		return types.Video{}, fmt.Errorf("writing narration: %w", err)
	}

	r.logger.Info("rendering video",
		zap.String("id", id),
		zap.String("runtime", r.rt.Name()),
		zap.String("image", r.image),
		zap.Int("slides", len(slides.Slides)))

	var stdout, stderr bytes.Buffer
	start := time.Now()
	err = r.rt.Run(ctx, container.RunSpec{
		Image:   r.image,
		Args:    r.manimArgs(id),
		Mounts:  []container.Mount{{Source: jobDir, Target: containerDir}},
		WorkDir: containerDir,
		User:    hostUser(),
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.Video{}, ctx.Err()
		}
		return types.Video{}, fmt.Errorf("running manim: %w%s", err, tail(stderr.String()))
	}
	r.logger.Debug("manim finished", zap.String("id", id), zap.Duration("elapsed", time.Since(start)))

	produced, err := findVideo(filepath.Join(jobDir, "media"), id)
	if err != nil {
		return types.Video{}, err
	}
	final := filepath.Join(workDir, id+"."+videoFormat)
	if err := os.Rename(produced, final); err != nil {
		return types.Video{}, fmt.Errorf("moving video out of job dir: %w", err)
	}

	size, sum, err := checksum(final)
	if err != nil {
		return types.Video{}, err
	}

	return types.Video{
		ID:         id,
		Topic:      slides.Topic,
		Path:       final,
		Format:     videoFormat,
		SizeBytes:  size,
		Checksum:   sum,
		Duration:   script.Duration,
		SlideCount: len(slides.Slides),
		CreatedAt:  r.now().UTC(),
	}, nil
}

// manimArgs returns the command run inside the container. The output file
// is named after the job ID so it can be found under media/.
func (r *ManimRenderer) manimArgs(id string) []string {
	return []string{
		"manim", "render",
		"-q" + r.quality,
		"--media_dir", containerDir + "/media",
		"-o", id,
		sceneFile, sceneClass,
	}
}

// findVideo locates the rendered file under mediaDir, preferring the one
// named after id and ignoring partial movie fragments.
func findVideo(mediaDir, id string) (string, error) {
	var match, fallback string
	err := filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "partial_movie_files" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != "."+videoFormat {
			return nil
		}
		if strings.TrimSuffix(d.Name(), "."+videoFormat) == id {
			match = path
			return filepath.SkipAll
		}
		if fallback == "" {
			fallback = path
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("searching for video: %w", err)
	}
	if match != "" {
		return match, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", ErrNoOutput
}

// checksum returns the size and hex SHA-256 of the file at path.
func checksum(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("opening video: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("hashing video: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// hostUser returns "uid:gid" so files written to the bind mount are owned
// by the caller. Empty on platforms without numeric IDs.
func hostUser() string {
	if goruntime.GOOS == "windows" {
		return ""
	}
	uid, gid := os.Getuid(), os.Getgid()
	if uid < 0 || gid < 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", uid, gid)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return "\n" + s
}
