package providers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Mock adapters answer from a fixture directory, or from synthesized
// defaults when no fixture matches, after an optional delay that simulates
// upstream latency. They let the whole pipeline run offline.
//
// Fixture layout:
//
//	<dir>/text/plan.json      story plan responses
//	<dir>/text/profile.json   visual profile responses
//	<dir>/text/style.json     base style responses
//	<dir>/text/moment.json    scene moment responses
//	<dir>/images/*.png        illustration bytes (first sorted file wins)
//	<dir>/audio/*.mp3         narration bytes (first sorted file wins)

// mockSceneCountRe extracts the requested scene count from a planning
// prompt.
var mockSceneCountRe = regexp.MustCompile(`exactly (\d+) scenes`)

// MockText serves canned LLM output keyed on the prompt's stage wording.
type MockText struct {
	fixtureDir string
	delay      time.Duration
}

var _ TextGenerator = (*MockText)(nil)

// NewMockText constructs the text mock.
func NewMockText(fixtureDir string, delay time.Duration) *MockText {
	return &MockText{fixtureDir: fixtureDir, delay: delay}
}

// Name implements TextGenerator.
func (m *MockText) Name() string {
	return "mock-text"
}

// GenerateText implements TextGenerator.
func (m *MockText) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := mockSleep(ctx, m.delay); err != nil {
		return "", err
	}

	lower := strings.ToLower(prompt)
	var stage string
	switch {
	case strings.Contains(lower, "visual profile"):
		stage = "profile"
	case strings.Contains(lower, "base style"):
		stage = "style"
	case strings.Contains(lower, "moment"):
		stage = "moment"
	default:
		stage = "plan"
	}

	if m.fixtureDir != "" {
		if data, err := os.ReadFile(filepath.Join(m.fixtureDir, "text", stage+".json")); err == nil {
			return string(data), nil
		}
	}

	switch stage {
	case "profile":
		return `{"characters": [
			{"name": "Pip", "canonical_appearance": "a small russet fox kit with a white-tipped tail and bright amber eyes"},
			{"name": "Luna", "canonical_appearance": "a silver barn owl with moonlit feathers and round dark eyes"}
		]}`, nil
	case "style":
		return `{"palette": "soft warm golds and dusk blues",
			"lighting": "gentle lantern glow with long soft shadows",
			"medium": "watercolor storybook illustration",
			"composition_notes": "wide framing with the characters small against the landscape"}`, nil
	case "moment":
		return `{"moment_description": "the characters pause at the forest edge as light spills between the trees",
			"camera": "low wide angle",
			"mood": "quiet wonder"}`, nil
	default:
		return m.synthesizePlan(prompt), nil
	}
}

// synthesizePlan fabricates a schema-complete story plan with the scene
// count the prompt asked for.
func (m *MockText) synthesizePlan(prompt string) string {
	count := 3
	if match := mockSceneCountRe.FindStringSubmatch(prompt); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil && n > 0 {
			count = n
		}
	}

	var b strings.Builder
	b.WriteString(`{"title": "Pip and the Lantern Moon", "characters": [`)
	b.WriteString(`{"name": "Pip", "role": "protagonist", "visual_description": "a small russet fox kit"},`)
	b.WriteString(`{"name": "Luna", "role": "companion", "visual_description": "a silver barn owl"}`)
	b.WriteString(`], "scenes": [`)
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b,
			`{"sequence": %d, "title": "Chapter %d", "text": "Pip and Luna wander deeper into the glowing woods.", "image_prompt": "Pip the fox and Luna the owl beneath lantern light, part %d"}`,
			i, i+1, i+1)
	}
	b.WriteString(`]}`)
	return b.String()
}

// MockImage serves fixture images, or a synthesized PNG gradient.
type MockImage struct {
	fixtureDir string
	delay      time.Duration
	fallback   []byte
}

var _ ImageGenerator = (*MockImage)(nil)

// NewMockImage constructs the image mock. The fallback PNG is rendered once
// up front.
func NewMockImage(fixtureDir string, delay time.Duration) *MockImage {
	return &MockImage{
		fixtureDir: fixtureDir,
		delay:      delay,
		fallback:   renderFallbackPNG(),
	}
}

// Name implements ImageGenerator.
func (m *MockImage) Name() string {
	return "mock-image"
}

// GenerateImage implements ImageGenerator.
func (m *MockImage) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewError("image", KindBadRequest, "prompt must not be empty", nil)
	}
	if err := mockSleep(ctx, m.delay); err != nil {
		return nil, err
	}
	if data := firstFixture(m.fixtureDir, "images", "*.png"); data != nil {
		return data, nil
	}
	return m.fallback, nil
}

// renderFallbackPNG draws a small deterministic gradient, comfortably above
// the degenerate-payload floor.
func renderFallbackPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(200 + x/4),
				G: uint8(160 + y/2),
				B: uint8(90 + x + y),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// Encoding an in-memory RGBA image cannot fail.
		panic(err)
	}
	return buf.Bytes()
}

// MockAudio serves fixture narration, or a synthesized MP3-shaped blob.
type MockAudio struct {
	fixtureDir string
	delay      time.Duration
	fallback   []byte
}

var _ SpeechSynthesizer = (*MockAudio)(nil)

// NewMockAudio constructs the audio mock.
func NewMockAudio(fixtureDir string, delay time.Duration) *MockAudio {
	// An ID3v2 header followed by silence-like padding. Nothing in the
	// pipeline decodes audio, so the shape only has to look like a file.
	fallback := make([]byte, 2048)
	copy(fallback, []byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, 0, 0xFF, 0xFB})
	return &MockAudio{fixtureDir: fixtureDir, delay: delay, fallback: fallback}
}

// Name implements SpeechSynthesizer.
func (m *MockAudio) Name() string {
	return "mock-audio"
}

// SynthesizeSpeech implements SpeechSynthesizer.
func (m *MockAudio) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewError("audio", KindBadRequest, "text must not be empty", nil)
	}
	if err := mockSleep(ctx, m.delay); err != nil {
		return nil, err
	}
	if data := firstFixture(m.fixtureDir, "audio", "*.mp3"); data != nil {
		return data, nil
	}
	return m.fallback, nil
}

// firstFixture returns the first matching fixture file by sorted name, or
// nil when the directory has none.
func firstFixture(dir, sub, pattern string) []byte {
	if dir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, sub, pattern))
	if err != nil || len(matches) == 0 {
		return nil
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil
	}
	return data
}

// mockSleep waits out the configured latency unless the context ends first.
func mockSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
