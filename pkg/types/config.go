// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "explainer-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model" validate:"required"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`

	// MaxTokens bounds the model response length.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`
}

// GraphConfig holds settings for the knowledge graph.
type GraphConfig struct {
	// GraphDir is the base directory for the graph (contains concepts/, index/).
	GraphDir string `json:"graph_dir" yaml:"graph_dir" mapstructure:"graph_dir" validate:"required"`

	// MaxResults is the default maximum number of search results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results" validate:"gte=0"`

	// MaxRelated caps how many related concepts Retrieve attaches (default 8).
	MaxRelated int `json:"max_related" yaml:"max_related" mapstructure:"max_related" validate:"gte=0"`
}

// GenerationConfig holds settings for the slide and script generator.
type GenerationConfig struct {
	AIConfig   `yaml:",inline" mapstructure:",squash"`
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxSlides caps the number of slides kept from a response (default 8).
	MaxSlides int `json:"max_slides" yaml:"max_slides" mapstructure:"max_slides" validate:"gte=0,lte=50"`

	// BreakerTimeout is how long the circuit breaker stays open before
	// letting a trial request through (default 60s).
	BreakerTimeout time.Duration `json:"breaker_timeout" yaml:"breaker_timeout" mapstructure:"breaker_timeout"`
}

// FormatConfig holds settings for slide and script normalization.
type FormatConfig struct {
	// MaxBullets caps bullets per slide (default 5).
	MaxBullets int `json:"max_bullets" yaml:"max_bullets" mapstructure:"max_bullets" validate:"gte=0"`

	// MaxBulletRunes truncates long bullets (default 90).
	MaxBulletRunes int `json:"max_bullet_runes" yaml:"max_bullet_runes" mapstructure:"max_bullet_runes" validate:"gte=0"`

	// WordsPerMinute drives narration timing estimates (default 150).
	WordsPerMinute int `json:"words_per_minute" yaml:"words_per_minute" mapstructure:"words_per_minute" validate:"gte=0"`
}

// RenderConfig holds settings for the Manim renderer.
type RenderConfig struct {
	// Image is the container image that provides the manim CLI.
	Image string `json:"image" yaml:"image" mapstructure:"image" validate:"required"`

	// WorkDir is where per-job scene directories are created.
	WorkDir string `json:"work_dir" yaml:"work_dir" mapstructure:"work_dir" validate:"required"`

	// Quality is the manim quality flag: l, m, h, p or k.
	Quality string `json:"quality" yaml:"quality" mapstructure:"quality" validate:"omitempty,oneof=l m h p k"`

	// KeepWorkDir leaves job directories in place after rendering.
	KeepWorkDir bool `json:"keep_work_dir" yaml:"keep_work_dir" mapstructure:"keep_work_dir"`
}

// StorageConfig holds settings for persisted videos.
type StorageConfig struct {
	// StorageDir is the base directory for stored videos and the catalog.
	StorageDir string `json:"storage_dir" yaml:"storage_dir" mapstructure:"storage_dir" validate:"required"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Graph      GraphConfig      `json:"graph" yaml:"graph" mapstructure:"graph"`
	Generation GenerationConfig `json:"generation" yaml:"generation" mapstructure:"generation"`
	Format     FormatConfig     `json:"format" yaml:"format" mapstructure:"format"`
	Render     RenderConfig     `json:"render" yaml:"render" mapstructure:"render"`
	Storage    StorageConfig    `json:"storage" yaml:"storage" mapstructure:"storage"`
}

// DefaultPipelineConfig returns the settings used when no config file or
// flag overrides a value.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Graph: GraphConfig{
			GraphDir:   "graph",
			MaxResults: 20,
			MaxRelated: 8,
		},
		Generation: GenerationConfig{
			AIConfig: AIConfig{
				Model:      "claude-sonnet-4-5-20250929",
				MaxRetries: 3,
				MaxTokens:  4096,
			},
			HTTPConfig: HTTPConfig{
				Timeout:   2 * time.Minute,
				UserAgent: "explainer-engine/0.1",
			},
			MaxSlides:      8,
			BreakerTimeout: 60 * time.Second,
		},
		Format: FormatConfig{
			MaxBullets:     5,
			MaxBulletRunes: 90,
			WordsPerMinute: 150,
		},
		Render: RenderConfig{
			Image:   "manimcommunity/manim:stable",
			WorkDir: "output/render",
			Quality: "m",
		},
		Storage: StorageConfig{
			StorageDir: "output/videos",
		},
	}
}
