// Package studio produces studio-style variants of a product photo.
package studio

import (
	"context"
	"fmt"
	"strings"

	"github.com/raine/tix-seo-studio/internal/media"
	"github.com/raine/tix-seo-studio/internal/policy"
	"github.com/rs/zerolog/log"
)

// Mode selects the studio variant.
type Mode string

const (
	ModeWhite     Mode = "white"
	ModeLifestyle Mode = "lifestyle"
)

// ParseMode accepts "white" or "lifestyle", case-insensitively. An empty
// string selects white.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeWhite:
		return ModeWhite, nil
	case ModeLifestyle:
		return ModeLifestyle, nil
	default:
		return "", fmt.Errorf("unknown studio mode %q (want white or lifestyle)", s)
	}
}

// ImageGenerator edits an image following a text instruction.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, img *media.Image) (*media.Image, error)
}

// Studio wraps the image model with the policy's scene instructions.
type Studio struct {
	gen    ImageGenerator
	scenes policy.Studio
}

// New creates a Studio.
func New(gen ImageGenerator, scenes policy.Studio) *Studio {
	return &Studio{gen: gen, scenes: scenes}
}

// CleanBackground puts the product on a pure white studio background and
// returns the result as a data URL.
func (s *Studio) CleanBackground(ctx context.Context, img *media.Image) (string, error) {
	return s.run(ctx, ModeWhite, s.scenes.WhiteBackground, img)
}

// Lifestyle places the product in scene, or in the default scene when
// scene is blank, and returns the result as a data URL.
func (s *Studio) Lifestyle(ctx context.Context, img *media.Image, scene string) (string, error) {
	return s.run(ctx, ModeLifestyle, s.LifestylePrompt(scene), img)
}

// Render dispatches on mode.
func (s *Studio) Render(ctx context.Context, mode Mode, img *media.Image, scene string) (string, error) {
	if mode == ModeLifestyle {
		return s.Lifestyle(ctx, img, scene)
	}
	return s.CleanBackground(ctx, img)
}

// LifestylePrompt returns the full instruction for a lifestyle scene.
func (s *Studio) LifestylePrompt(scene string) string {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		scene = s.scenes.DefaultScene
	}
	return s.scenes.LifestylePrefix + scene
}

func (s *Studio) run(ctx context.Context, mode Mode, prompt string, img *media.Image) (string, error) {
	out, err := s.gen.GenerateImage(ctx, prompt, img)
	if err != nil {
		return "", fmt.Errorf("failed to render %s image: %w", mode, err)
	}
	log.Info().Str("mode", string(mode)).Str("mimeType", out.MIMEType).Int("bytes", len(out.Data)).Msg("studio image generated")
	return out.DataURL(), nil
}
