// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"fmt"
	"io"
	"strconv"
	"text/template"
	"time"

	"github.com/pdiddy/explainer-engine/pkg/types"
)

// sceneClass is the Manim Scene subclass defined in scene.py.
const sceneClass = "ExplainerScene"

// fallbackWait is used for slides without a narration segment.
const fallbackWait = 2 * time.Second

// sceneTmpl generates the Manim scene source. Every string reaches Python
// through the py function, which emits a quoted literal.
var sceneTmpl = template.Must(template.New("scene").Funcs(template.FuncMap{
	"py": pyString,
}).Parse(`from manim import *


class {{.Class}}(Scene):
    def construct(self):
        title = Text({{py .Topic}}, font_size=56)
        self.play(Write(title))
        self.wait(1)
        self.play(FadeOut(title))
{{- range .Slides}}

        # slide {{.Number}}
        self.next_section({{py .Section}})
        heading = Text({{py .Title}}, font_size=40).to_edge(UP)
        items = [
{{- range .Bullets}}
            Text({{py .}}, font_size=28),
{{- end}}
        ]
{{- if .Equation}}
        items.append(MathTex({{py .Equation}}))
{{- end}}
        if items:
            body = VGroup(*items).arrange(DOWN, aligned_edge=LEFT, buff=0.35)
            body.scale_to_fit_width(min(body.width, config.frame_width - 1))
            body.next_to(heading, DOWN, buff=0.6)
            self.play(FadeIn(heading), FadeIn(body))
        else:
            self.play(FadeIn(heading))
        self.wait({{.Wait}})
        self.play(*[FadeOut(m) for m in self.mobjects])
{{- end}}
`))

type sceneData struct {
	Class  string
	Topic  string
	Slides []sceneSlide
}

type sceneSlide struct {
	Number   int
	Section  string
	Title    string
	Bullets  []string
	Equation string
	Wait     string
}

// writeScene renders the scene source for slides, holding each slide for
// the duration of its narration segment.
func writeScene(w io.Writer, slides types.FormattedSlideSet, script types.FormattedScript) error {
	data := sceneData{Class: sceneClass, Topic: slides.Topic}
	for i, s := range slides.Slides {
		wait := fallbackWait
		if seg, ok := script.SegmentFor(i); ok && seg.Duration > 0 {
			wait = seg.Duration
		}
		data.Slides = append(data.Slides, sceneSlide{
			Number:   s.Number,
			Section:  fmt.Sprintf("slide-%02d", s.Number),
			Title:    s.Title,
			Bullets:  s.Bullets,
			Equation: s.Equation,
			Wait:     strconv.FormatFloat(wait.Seconds(), 'f', 1, 64),
		})
	}
	return sceneTmpl.Execute(w, data)
}

// pyString returns s as a double-quoted Python string literal. Go's quoting
// only produces escapes that Python reads the same way.
func pyString(s string) string {
	return strconv.Quote(s)
}

// writeNarration writes the narration script, one block per slide, so it
// can be fed to a voice-over tool alongside the video.
func writeNarration(w io.Writer, script types.FormattedScript) error {
	for _, seg := range script.Segments {
		if _, err := fmt.Fprintf(w, "[slide %d] (%s)\n%s\n\n", seg.SlideIndex+1, seg.Duration, seg.Narration); err != nil {
			return err
		}
	}
	return nil
}
