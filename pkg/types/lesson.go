// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Slide is one generated slide.
type Slide struct {
	// Title is the slide heading.
	Title string `json:"title" yaml:"title" validate:"required"`

	// Bullets are the body points, in display order.
	Bullets []string `json:"bullets" yaml:"bullets"`

	// Equation is an optional LaTeX expression shown under the bullets.
	Equation string `json:"equation,omitempty" yaml:"equation,omitempty"`

	// Notes are speaker notes that are never rendered.
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// SlideSet is an ordered sequence of slides about one topic.
type SlideSet struct {
	Topic  string  `json:"topic" yaml:"topic"`
	Slides []Slide `json:"slides" yaml:"slides"`
}

// ScriptSegment is the narration spoken over one slide.
type ScriptSegment struct {
	// SlideIndex is the zero-based index of the slide this segment narrates.
	SlideIndex int `json:"slide_index" yaml:"slide_index"`

	// Narration is the text to be spoken.
	Narration string `json:"narration" yaml:"narration"`
}

// Script is the narration that accompanies a SlideSet.
type Script struct {
	Topic    string          `json:"topic" yaml:"topic"`
	Segments []ScriptSegment `json:"segments" yaml:"segments"`
}

// FormattedSlide is a Slide normalized for rendering.
type FormattedSlide struct {
	// Number is the one-based slide number.
	Number   int      `json:"number" yaml:"number"`
	Title    string   `json:"title" yaml:"title"`
	Bullets  []string `json:"bullets" yaml:"bullets"`
	Equation string   `json:"equation,omitempty" yaml:"equation,omitempty"`
}

// FormattedSlideSet is a SlideSet after normalization.
type FormattedSlideSet struct {
	Topic  string           `json:"topic" yaml:"topic"`
	Slides []FormattedSlide `json:"slides" yaml:"slides"`
}

// FormattedSegment is a ScriptSegment after normalization, with an
// estimated speaking time.
type FormattedSegment struct {
	SlideIndex int           `json:"slide_index" yaml:"slide_index"`
	Narration  string        `json:"narration" yaml:"narration"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// FormattedScript is a Script after normalization.
type FormattedScript struct {
	Topic    string             `json:"topic" yaml:"topic"`
	Segments []FormattedSegment `json:"segments" yaml:"segments"`

	// Duration is the sum of the segment durations.
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// SegmentFor returns the narration segment for the given zero-based slide
// index, or false if the script has none.
func (s FormattedScript) SegmentFor(slideIndex int) (FormattedSegment, bool) {
	for _, seg := range s.Segments {
		if seg.SlideIndex == slideIndex {
			return seg, true
		}
	}
	return FormattedSegment{}, false
}
