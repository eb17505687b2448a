// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Video is a rendered explainer artifact.
type Video struct {
	// ID is a UUID assigned at render time.
	ID string `json:"id" yaml:"id"`

	// Topic is the slide set topic the video was rendered from.
	Topic string `json:"topic" yaml:"topic"`

	// Path is the local filesystem path to the video file.
	Path string `json:"path" yaml:"path"`

	// Format is the container format (e.g. "mp4").
	Format string `json:"format" yaml:"format"`

	// SizeBytes is the file size.
	SizeBytes int64 `json:"size_bytes" yaml:"size_bytes"`

	// Checksum is the hex SHA-256 of the file contents.
	Checksum string `json:"checksum" yaml:"checksum"`

	// Duration is the planned running time derived from the narration.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// SlideCount is the number of slides rendered.
	SlideCount int `json:"slide_count" yaml:"slide_count"`

	// CreatedAt is when rendering finished.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
