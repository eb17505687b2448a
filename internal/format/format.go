// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package format normalizes generated slides and narration into the shape
// the renderer draws. Formatting is deterministic, has no I/O, and applying
// it to its own output changes nothing.
package format

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/explainer-engine/pkg/types"
)

const (
	defaultMaxBullets     = 5
	defaultMaxBulletRunes = 90
	defaultWordsPerMinute = 150

	// minSegmentDuration keeps very short narration on screen long enough to read.
	minSegmentDuration = 2 * time.Second

	ellipsis = "…"
)

// Formatter applies the configured normalization rules.
type Formatter struct {
	maxBullets     int
	maxBulletRunes int
	wordsPerMinute int
}

// New returns a Formatter for cfg. Zero values fall back to defaults.
func New(cfg types.FormatConfig) *Formatter {
	f := &Formatter{
		maxBullets:     cfg.MaxBullets,
		maxBulletRunes: cfg.MaxBulletRunes,
		wordsPerMinute: cfg.WordsPerMinute,
	}
	if f.maxBullets <= 0 {
		f.maxBullets = defaultMaxBullets
	}
	if f.maxBulletRunes <= 0 {
		f.maxBulletRunes = defaultMaxBulletRunes
	}
	if f.wordsPerMinute <= 0 {
		f.wordsPerMinute = defaultWordsPerMinute
	}
	return f
}

// FormatSlides collapses whitespace, drops empty bullets, caps the bullet
// count and length, and numbers slides from 1. Speaker notes are dropped.
func (f *Formatter) FormatSlides(in types.SlideSet) types.FormattedSlideSet {
	out := types.FormattedSlideSet{
		Topic:  collapseSpace(in.Topic),
		Slides: make([]types.FormattedSlide, 0, len(in.Slides)),
	}

	for i, s := range in.Slides {
		fs := types.FormattedSlide{
			Number:   i + 1,
			Title:    collapseSpace(s.Title),
			Equation: strings.TrimSpace(s.Equation),
			Bullets:  []string{},
		}
		for _, b := range s.Bullets {
			b = strings.TrimLeft(collapseSpace(b), "-*• ")
			if b == "" {
				continue
			}
			if len(fs.Bullets) == f.maxBullets {
				break
			}
			fs.Bullets = append(fs.Bullets, truncate(b, f.maxBulletRunes))
		}
		out.Slides = append(out.Slides, fs)
	}

	return out
}

// FormatScript collapses whitespace, makes every segment end with terminal
// punctuation, and estimates speaking time per segment.
func (f *Formatter) FormatScript(in types.Script) types.FormattedScript {
	out := types.FormattedScript{
		Topic:    collapseSpace(in.Topic),
		Segments: make([]types.FormattedSegment, 0, len(in.Segments)),
	}

	for _, seg := range in.Segments {
		text := terminate(collapseSpace(seg.Narration))
		d := f.estimate(text)
		out.Segments = append(out.Segments, types.FormattedSegment{
			SlideIndex: seg.SlideIndex,
			Narration:  text,
			Duration:   d,
		})
		out.Duration += d
	}

	return out
}

// estimate returns the speaking time for text at the configured pace,
// rounded up to a whole second and never below minSegmentDuration.
func (f *Formatter) estimate(text string) time.Duration {
	words := len(strings.Fields(text))
	d := time.Duration(words) * time.Minute / time.Duration(f.wordsPerMinute)
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	if d < minSegmentDuration {
		d = minSegmentDuration
	}
	return d
}

// collapseSpace trims s and replaces every whitespace run with one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes, ending with an ellipsis when cut.
// Cuts fall on a word boundary when one exists in the last third.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	cut := runes[:n-1]
	if sp := lastSpace(cut); sp > len(cut)*2/3 {
		cut = cut[:sp]
	}
	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + ellipsis
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == ' ' {
			return i
		}
	}
	return -1
}

// terminate appends a period unless s is empty or already ends a sentence.
// Dangling punctuation and spaces before the period are dropped.
func terminate(s string) string {
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && !endsSentence(r))
	})
	if s == "" {
		return s
	}
	if last, _ := utf8.DecodeLastRuneInString(s); endsSentence(last) {
		return s
	}
	return s + "."
}

// endsSentence reports whether r can close a sentence: terminal marks,
// closing quotes and closing brackets.
func endsSentence(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '"', '\'':
		return true
	}
	return unicode.In(r, unicode.Pe, unicode.Pf)
}
