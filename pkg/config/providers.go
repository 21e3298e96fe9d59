package config

import "time"

// ProvidersConfig groups the three upstream AI provider configurations plus
// the mock switch that replaces all of them for offline runs.
type ProvidersConfig struct {
	Text  *TextProviderConfig  `yaml:"text"`
	Image *ImageProviderConfig `yaml:"image"`
	Audio *AudioProviderConfig `yaml:"audio"`
	Mock  *MockConfig          `yaml:"mock"`
}

// TextProviderConfig configures the planning/description LLM. The endpoint
// is OpenAI-chat-completions compatible (OpenRouter by default).
type TextProviderConfig struct {
	// Optional custom endpoint/base URL
	BaseURL string `yaml:"base_url,omitempty"`

	// Environment variable name for API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Model name (required)
	Model string `yaml:"model"`

	Temperature float64       `yaml:"temperature,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// ImageProviderConfig configures the illustration model endpoint
// (Together-compatible images API).
type ImageProviderConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	Model     string `yaml:"model"`

	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`
	Steps  int `yaml:"steps,omitempty"`

	// Seed pins the diffusion seed for reproducible renders. Zero leaves
	// the upstream free to randomize.
	Seed int64 `yaml:"seed,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// AudioProviderConfig configures the narration TTS endpoint
// (ElevenLabs-compatible API).
type AudioProviderConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// VoiceID selects the narration voice
	VoiceID string `yaml:"voice_id"`

	// HighQuality switches to the multilingual model at higher cost
	HighQuality bool `yaml:"high_quality,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MockConfig replaces all three providers with canned responses when
// enabled. FixtureDir optionally overrides the synthesized defaults with
// files on disk; Delay simulates upstream latency.
type MockConfig struct {
	Enabled    bool          `yaml:"enabled"`
	FixtureDir string        `yaml:"fixture_dir,omitempty"`
	Delay      time.Duration `yaml:"delay,omitempty"`
}

// DefaultProvidersConfig returns the built-in provider defaults.
func DefaultProvidersConfig() *ProvidersConfig {
	return &ProvidersConfig{
		Text: &TextProviderConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			APIKeyEnv:   "OPENROUTER_API_KEY",
			Model:       "openai/gpt-4o-mini",
			Temperature: 0.8,
			MaxTokens:   4096,
			Timeout:     60 * time.Second,
		},
		Image: &ImageProviderConfig{
			BaseURL:   "https://api.together.xyz",
			APIKeyEnv: "TOGETHER_API_KEY",
			Model:     "black-forest-labs/FLUX.1-schnell",
			Width:     1024,
			Height:    768,
			Steps:     4,
			Timeout:   120 * time.Second,
		},
		Audio: &AudioProviderConfig{
			BaseURL:   "https://api.elevenlabs.io",
			APIKeyEnv: "ELEVENLABS_API_KEY",
			VoiceID:   "EXAVITQu4vr4xnSDxMaL",
			Timeout:   120 * time.Second,
		},
		Mock: &MockConfig{
			Enabled: false,
		},
	}
}
