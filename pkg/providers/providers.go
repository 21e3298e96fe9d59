// Package providers holds the upstream AI adapters used by the story
// pipeline: a chat model for planning, an image model for illustrations and
// a speech model for narration. Adapters make exactly one upstream call per
// invocation and classify every failure; retry scheduling belongs to
// RetryPolicy so the budget is spent in one place.
package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/storyloom/storyloom/pkg/config"
)

// TextGenerator produces model text for a prompt.
type TextGenerator interface {
	Name() string
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ImageGenerator renders an illustration for a prompt and returns the raw
// encoded image bytes.
type ImageGenerator interface {
	Name() string
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// SpeechSynthesizer narrates text and returns the raw encoded audio bytes.
type SpeechSynthesizer interface {
	Name() string
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

// Set bundles the three adapters the pipeline needs.
type Set struct {
	Text  TextGenerator
	Image ImageGenerator
	Audio SpeechSynthesizer
}

// New builds the adapter set from configuration. With mock mode enabled the
// set serves fixture data and never talks to an upstream, so no API keys are
// required.
func New(cfg *config.ProvidersConfig) (*Set, error) {
	if cfg.Mock != nil && cfg.Mock.Enabled {
		return &Set{
			Text:  NewMockText(cfg.Mock.FixtureDir, cfg.Mock.Delay),
			Image: NewMockImage(cfg.Mock.FixtureDir, cfg.Mock.Delay),
			Audio: NewMockAudio(cfg.Mock.FixtureDir, cfg.Mock.Delay),
		}, nil
	}

	textKey, err := requireKey("text", cfg.Text.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	imageKey, err := requireKey("image", cfg.Image.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	audioKey, err := requireKey("audio", cfg.Audio.APIKeyEnv)
	if err != nil {
		return nil, err
	}

	text, err := NewOpenRouter(cfg.Text, textKey)
	if err != nil {
		return nil, fmt.Errorf("text provider: %w", err)
	}

	return &Set{
		Text:  text,
		Image: NewTogether(cfg.Image, imageKey),
		Audio: NewElevenLabs(cfg.Audio, audioKey),
	}, nil
}

// requireKey resolves an API key environment variable, failing fast when it
// is unset so misconfiguration surfaces at startup rather than mid-job.
func requireKey(provider, envName string) (string, error) {
	key := os.Getenv(envName)
	if key == "" {
		return "", fmt.Errorf("%s provider: environment variable %s is not set", provider, envName)
	}
	return key, nil
}
