// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/explainer-engine/internal/container"
	"github.com/pdiddy/explainer-engine/pkg/types"
)

var fakeVideo = []byte("\x00\x00\x00\x18ftypmp42 fake video bytes")

// mockRuntime stands in for docker/podman. Run writes a fake video where
// Manim would put it.
type mockRuntime struct {
	imageErr error
	runErr   error
	noOutput bool
	specs    []container.RunSpec
	scene    string
}

func (m *mockRuntime) Name() string    { return "mock" }
func (m *mockRuntime) Available() bool { return true }

func (m *mockRuntime) ImageExists(string) error { return m.imageErr }

func (m *mockRuntime) Run(ctx context.Context, spec container.RunSpec) error {
	m.specs = append(m.specs, spec)
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.runErr != nil {
		if spec.Stderr != nil {
			spec.Stderr.Write([]byte("Traceback: LaTeX error"))
		}
		return m.runErr
	}
	jobDir := spec.Mounts[0].Source
	scene, err := os.ReadFile(filepath.Join(jobDir, sceneFile))
	if err != nil {
		return err
	}
	m.scene = string(scene)
	if m.noOutput {
		return nil
	}

	var name string
	for i, a := range spec.Args {
		if a == "-o" {
			name = spec.Args[i+1]
		}
	}
	partial := filepath.Join(jobDir, "media", "videos", "scene", "720p30", "partial_movie_files", sceneClass)
	if err := os.MkdirAll(partial, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(partial, "000.mp4"), []byte("partial"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(jobDir, "media", "videos", "scene", "720p30", name+".mp4"), fakeVideo, 0o644)
}

func sampleSlides() types.FormattedSlideSet {
	return types.FormattedSlideSet{
		Topic: "Photosynthesis",
		Slides: []types.FormattedSlide{
			{Number: 1, Title: "What is \"photosynthesis\"?", Bullets: []string{"Light becomes chemical energy", `Uses a C:\path-like "quote"`}},
			{Number: 2, Title: "The equation", Bullets: []string{}, Equation: `6CO_2 + 6H_2O \rightarrow C_6H_{12}O_6`},
		},
	}
}

func sampleScript() types.FormattedScript {
	return types.FormattedScript{
		Topic: "Photosynthesis",
		Segments: []types.FormattedSegment{
			{SlideIndex: 0, Narration: "Plants make food from light.", Duration: 3 * time.Second},
			{SlideIndex: 1, Narration: "Here is the overall reaction.", Duration: 4500 * time.Millisecond},
		},
		Duration: 7500 * time.Millisecond,
	}
}

func newTestRenderer(t *testing.T, rt *mockRuntime, keep bool) *ManimRenderer {
	t.Helper()
	r, err := NewManimRenderer(rt, types.RenderConfig{
		Image:       "manim:test",
		WorkDir:     t.TempDir(),
		Quality:     "l",
		KeepWorkDir: keep,
	})
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestNewManimRendererChecksImage(t *testing.T) {
	_, err := NewManimRenderer(&mockRuntime{imageErr: errors.New("image manim:test not found")},
		types.RenderConfig{Image: "manim:test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manim:test")

	_, err = NewManimRenderer(&mockRuntime{}, types.RenderConfig{})
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	rt := &mockRuntime{}
	r := newTestRenderer(t, rt, false)

	v, err := r.Render(context.Background(), sampleSlides(), sampleScript())
	require.NoError(t, err)

	sum := sha256.Sum256(fakeVideo)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "Photosynthesis", v.Topic)
	assert.Equal(t, "mp4", v.Format)
	assert.Equal(t, int64(len(fakeVideo)), v.SizeBytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), v.Checksum)
	assert.Equal(t, 7500*time.Millisecond, v.Duration)
	assert.Equal(t, 2, v.SlideCount)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), v.CreatedAt)
	assert.Equal(t, filepath.Join(r.workDir, v.ID+".mp4"), v.Path)

	data, err := os.ReadFile(v.Path)
	require.NoError(t, err)
	assert.Equal(t, fakeVideo, data)

	_, err = os.Stat(filepath.Join(r.workDir, v.ID))
	assert.True(t, os.IsNotExist(err), "job dir should be removed")

	require.Len(t, rt.specs, 1)
	spec := rt.specs[0]
	assert.Equal(t, "manim:test", spec.Image)
	assert.Equal(t, containerDir, spec.WorkDir)
	assert.Equal(t, containerDir, spec.Mounts[0].Target)
	assert.Equal(t, []string{"manim", "render", "-ql", "--media_dir", "/manim/media", "-o", v.ID, "scene.py", "ExplainerScene"}, spec.Args)
}

func TestRenderKeepsWorkDir(t *testing.T) {
	r := newTestRenderer(t, &mockRuntime{}, true)

	v, err := r.Render(context.Background(), sampleSlides(), sampleScript())
	require.NoError(t, err)

	narration, err := os.ReadFile(filepath.Join(r.workDir, v.ID, narrationFile))
	require.NoError(t, err)
	assert.Contains(t, string(narration), "[slide 1] (3s)\nPlants make food from light.")
	assert.Contains(t, string(narration), "[slide 2] (4.5s)")
	assert.FileExists(t, filepath.Join(r.workDir, v.ID, sceneFile))
}

func TestRenderScene(t *testing.T) {
	rt := &mockRuntime{}
	r := newTestRenderer(t, rt, false)

	_, err := r.Render(context.Background(), sampleSlides(), sampleScript())
	require.NoError(t, err)

	scene := rt.scene
	assert.Contains(t, scene, "class ExplainerScene(Scene):")
	assert.Contains(t, scene, `Text("Photosynthesis", font_size=56)`)
	assert.Contains(t, scene, `Text("What is \"photosynthesis\"?", font_size=40)`)
	assert.Contains(t, scene, `Text("Uses a C:\\path-like \"quote\"", font_size=28)`)
	assert.Contains(t, scene, `MathTex("6CO_2 + 6H_2O \\rightarrow C_6H_{12}O_6")`)
	assert.Contains(t, scene, `self.next_section("slide-01")`)
	assert.Contains(t, scene, `self.next_section("slide-02")`)
	assert.Contains(t, scene, "self.wait(3.0)")
	assert.Contains(t, scene, "self.wait(4.5)")
}

func TestWriteSceneFallbackWait(t *testing.T) {
	var buf bytes.Buffer
	slides := types.FormattedSlideSet{Topic: "t", Slides: []types.FormattedSlide{{Number: 1, Title: "Only", Bullets: []string{}}}}
	require.NoError(t, writeScene(&buf, slides, types.FormattedScript{}))
	assert.Contains(t, buf.String(), "self.wait(2.0)")
	assert.Contains(t, buf.String(), "items = [\n        ]")
}

func TestRenderErrors(t *testing.T) {
	t.Run("no slides", func(t *testing.T) {
		r := newTestRenderer(t, &mockRuntime{}, false)
		_, err := r.Render(context.Background(), types.FormattedSlideSet{}, types.FormattedScript{})
		assert.ErrorIs(t, err, ErrNoSlides)
	})

	t.Run("manim fails", func(t *testing.T) {
		r := newTestRenderer(t, &mockRuntime{runErr: errors.New("exit status 1")}, false)
		_, err := r.Render(context.Background(), sampleSlides(), sampleScript())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit status 1")
		assert.Contains(t, err.Error(), "LaTeX error")
	})

	t.Run("no output", func(t *testing.T) {
		r := newTestRenderer(t, &mockRuntime{noOutput: true}, false)
		_, err := r.Render(context.Background(), sampleSlides(), sampleScript())
		assert.ErrorIs(t, err, ErrNoOutput)
	})

	t.Run("cancelled", func(t *testing.T) {
		r := newTestRenderer(t, &mockRuntime{}, false)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := r.Render(ctx, sampleSlides(), sampleScript())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFindVideoFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "videos"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "videos", "ExplainerScene.mp4"), []byte("x"), 0o644))

	got, err := findVideo(dir, "some-id")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "videos", "ExplainerScene.mp4"), got)
}

func TestPyString(t *testing.T) {
	assert.Equal(t, `"plain"`, pyString("plain"))
	assert.Equal(t, `"a\"b"`, pyString(`a"b`))
	assert.Equal(t, `"back\\slash"`, pyString(`back\slash`))
	assert.Equal(t, `"line\nbreak"`, pyString("line\nbreak"))
	assert.Equal(t, `"café"`, pyString("café"))
	assert.False(t, strings.Contains(pyString("x\x00y"), "\x00"))
}
