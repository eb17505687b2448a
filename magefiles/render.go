//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// defaultManimImage matches the render.image default.
const defaultManimImage = "manimcommunity/manim:stable"

// Render groups Manim rendering targets.
type Render mg.Namespace

// Pull fetches the Manim image with docker, or podman when docker is absent.
// EXPLAINER_ENGINE_RENDER_IMAGE overrides the image.
func (Render) Pull() error {
	image := os.Getenv("EXPLAINER_ENGINE_RENDER_IMAGE")
	if image == "" {
		image = defaultManimImage
	}
	for _, bin := range []string{"docker", "podman"} {
		if err := sh.Run(bin, "info"); err != nil {
			continue
		}
		return sh.RunV(bin, "pull", image)
	}
	return fmt.Errorf("no container runtime available: neither docker nor podman found or operational")
}

// Explain builds the CLI and renders a video for the query in $QUERY.
func (Render) Explain() error {
	mg.Deps(Init, Build)
	query := os.Getenv("QUERY")
	if query == "" {
		return fmt.Errorf("set QUERY to the question to explain")
	}
	return sh.RunV("bin/explainer-engine", "explain", query)
}
