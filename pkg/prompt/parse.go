package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/storyloom/storyloom/pkg/models"
	"github.com/storyloom/storyloom/pkg/providers"
)

// ParseStoryPlan parses stage-1 output and checks the plan is complete:
// the scene count matches the request, sequences run 0..n-1 with no gaps,
// every scene carries text and a draft image prompt, and at least one
// character is introduced.
func ParseStoryPlan(raw string, wantScenes int) (*models.StoryPlan, error) {
	var plan models.StoryPlan
	if err := unmarshalFirstObject(raw, &plan); err != nil {
		return nil, malformed("story plan", err)
	}

	if strings.TrimSpace(plan.Title) == "" {
		return nil, malformed("story plan", fmt.Errorf("missing title"))
	}
	if len(plan.Characters) == 0 {
		return nil, malformed("story plan", fmt.Errorf("no characters"))
	}
	for i, character := range plan.Characters {
		if strings.TrimSpace(character.Name) == "" {
			return nil, malformed("story plan", fmt.Errorf("character %d has no name", i))
		}
	}
	if len(plan.Scenes) != wantScenes {
		return nil, malformed("story plan", fmt.Errorf("%d scenes, want %d", len(plan.Scenes), wantScenes))
	}
	for i, scene := range plan.Scenes {
		if scene.Sequence != i {
			return nil, malformed("story plan", fmt.Errorf("scene %d has sequence %d, sequences must run 0..%d", i, scene.Sequence, wantScenes-1))
		}
		if strings.TrimSpace(scene.Text) == "" {
			return nil, malformed("story plan", fmt.Errorf("scene %d has no text", i))
		}
		if strings.TrimSpace(scene.ImagePrompt) == "" {
			return nil, malformed("story plan", fmt.Errorf("scene %d has no image prompt", i))
		}
	}
	return &plan, nil
}

// ParseVisualProfile parses stage-2 output.
func ParseVisualProfile(raw string) (*models.VisualProfile, error) {
	var profile models.VisualProfile
	if err := unmarshalFirstObject(raw, &profile); err != nil {
		return nil, malformed("visual profile", err)
	}

	if len(profile.Characters) == 0 {
		return nil, malformed("visual profile", fmt.Errorf("no characters"))
	}
	for i, look := range profile.Characters {
		if strings.TrimSpace(look.Name) == "" {
			return nil, malformed("visual profile", fmt.Errorf("character %d has no name", i))
		}
		if strings.TrimSpace(look.CanonicalAppearance) == "" {
			return nil, malformed("visual profile", fmt.Errorf("character %q has no canonical appearance", look.Name))
		}
	}
	return &profile, nil
}

// ParseBaseStyle parses stage-3 output. Composition notes are optional;
// the other fields are not.
func ParseBaseStyle(raw string) (*models.BaseStyle, error) {
	var style models.BaseStyle
	if err := unmarshalFirstObject(raw, &style); err != nil {
		return nil, malformed("base style", err)
	}

	required := []struct{ field, value string }{
		{"palette", style.Palette},
		{"lighting", style.Lighting},
		{"medium", style.Medium},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, malformed("base style", fmt.Errorf("missing %s", r.field))
		}
	}
	return &style, nil
}

// ParseSceneMoment parses stage-4 output.
func ParseSceneMoment(raw string) (*models.SceneMoment, error) {
	var moment models.SceneMoment
	if err := unmarshalFirstObject(raw, &moment); err != nil {
		return nil, malformed("scene moment", err)
	}

	if strings.TrimSpace(moment.MomentDescription) == "" {
		return nil, malformed("scene moment", fmt.Errorf("missing moment_description"))
	}
	return &moment, nil
}

// malformed wraps a schema violation as an upstream-malformed text provider
// failure, so retry classification treats a 2xx-with-garbage response
// differently from a transport error.
func malformed(stage string, cause error) error {
	return providers.NewError("text", providers.KindUpstreamMalformed, stage+" response failed validation", cause)
}

// unmarshalFirstObject decodes the first balanced JSON object found in text
// into v. Models routinely wrap JSON in markdown fences or prose; scanning
// for the first balanced object handles every wrapper shape at once.
func unmarshalFirstObject(text string, v any) error {
	obj, ok := firstJSONObject(text)
	if !ok {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// firstJSONObject returns the substring from the first '{' through its
// balancing '}'. Braces inside JSON strings (including escaped quotes) do
// not count toward nesting.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
