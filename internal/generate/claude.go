// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"

	"github.com/pdiddy/explainer-engine/internal/httputil"
	"github.com/pdiddy/explainer-engine/pkg/types"
)

// lessonPromptTmpl is the prompt sent to the Claude API for one concept.
var lessonPromptTmpl = template.Must(template.New("lesson").Parse(`You are writing a short animated explainer video. Using only the reference material below, produce a slide deck and the narration spoken over each slide.

Rules:
- At most {{.MaxSlides}} slides. Start with an overview slide and end with a recap slide.
- Each slide has a short "title", 2 to 5 "bullets" of at most 12 words, an optional "equation" in LaTeX, and optional speaker "notes".
- "narration" holds exactly one paragraph per slide, in slide order, written to be read aloud in 15 to 40 seconds.
- Do not invent facts that are not supported by the reference material.

Respond with a JSON object with two keys, "slides" and "narration". Do not include any text outside the JSON object.

Example response:
{"slides": [{"title": "What is osmosis?", "bullets": ["Water moves across a membrane", "From low to high solute concentration"]}], "narration": ["Osmosis is the movement of water across a semi-permeable membrane."]}

Topic: {{.Title}}

Reference material:
{{.Body}}
{{if .Related}}
Related concepts:
{{range .Related}}- {{.Name}} ({{.Kind}}): {{.Summary}}
{{end}}{{end}}{{if .Sources}}
Sources:
{{range .Sources}}- {{.}}
{{end}}{{end}}`))

// renderPrompt executes the lesson prompt template for raw.
func renderPrompt(raw types.RawContent, maxSlides int) (string, error) {
	var buf bytes.Buffer
	data := struct {
		types.RawContent
		MaxSlides int
	}{RawContent: raw, MaxSlides: maxSlides}
	if err := lessonPromptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

const defaultMaxTokens = 4096

// ClaudeBackend calls the Claude Messages API.
type ClaudeBackend struct {
	APIKey    string
	Model     string
	MaxTokens int
	UserAgent string
	Client    *http.Client
}

// NewClaudeBackend builds a backend from generation settings.
func NewClaudeBackend(cfg types.GenerationConfig) *ClaudeBackend {
	return &ClaudeBackend{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		UserAgent: cfg.UserAgent,
		Client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete sends prompt to the Claude API and parses the JSON answer.
// HTTP 429 responses are retried by httputil.DoWithRetry.
func (c *ClaudeBackend) Complete(ctx context.Context, prompt string) (Response, error) {
	if c.APIKey == "" {
		return Response{}, fmt.Errorf("%w: Claude API key not configured", ErrNotConfigured)
	}

	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	bodyBytes, err := json.Marshal(claudeRequest{
		Model:     c.Model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return Response{}, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return Response{}, fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		var out Response
		if err := json.Unmarshal([]byte(stripCodeFence(block.Text)), &out); err != nil {
			return Response{}, fmt.Errorf("%w: parsing JSON: %v", ErrInvalidResponse, err)
		}
		return out, nil
	}

	return Response{}, fmt.Errorf("%w: no text content in Claude API response", ErrInvalidResponse)
}

// stripCodeFence removes a surrounding Markdown code fence, which models
// sometimes add despite instructions.
func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
