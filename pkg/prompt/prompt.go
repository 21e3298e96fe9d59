// Package prompt builds the LLM prompts for every generation stage and
// parses the structured JSON each stage returns. Builders are stateless
// string templates; the paired parsers reject responses that do not match
// the expected schema.
//
// The final illustration prompt is not LLM output: ComposeImagePrompt
// concatenates the shared style, the appearances of the characters present
// in the scene, and the scene moment with a fixed, order-stable rule, so a
// re-run over the same inputs produces the same prompt.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/storyloom/storyloom/pkg/models"
)

// rawJSONTrailer closes every builder template. Models love decorating JSON
// with markdown fences; the parsers tolerate it, but asking first is cheaper.
const rawJSONTrailer = `IMPORTANT: Do NOT format the response as markdown, code block, or with any beautifying characters. Return only raw, valid JSON, with no extra formatting or decoration.`

// planPromptTemplate is the story planning prompt.
// %d = scene count, %s = title, %s = user premise.
//
// The literal phrase "exactly %d scenes" is load-bearing: the offline text
// mock reads the requested count out of it.
const planPromptTemplate = `You are a seasoned children's story writer.

TASK:
Write a complete illustrated story plan for the title and premise below. Create exactly %d scenes.

OUTPUT JSON:
{
  "title": string,
  "characters": [{"name": string, "role": string, "visual_description": string}],
  "scenes": [{"sequence": number, "title": string, "text": string, "image_prompt": string}]
}

REQUIREMENTS:
- scenes are numbered by "sequence" starting at 0, in reading order
- every scene "text" is 2-4 sentences of narration suitable for reading aloud
- every scene "image_prompt" describes the illustration for that scene
- introduce every recurring character in "characters" with a concrete visual_description
- content must be gentle and appropriate for young children

TITLE: %s

PREMISE:
'''%s'''

` + rawJSONTrailer

// profilePromptTemplate locks character appearances.
// %s = JSON array of the plan's characters.
const profilePromptTemplate = `You are a visual prompt specialist that provides detailed visual descriptions for consistent storytelling.

TASK:
Build a visual profile for the story characters below. Freeze one canonical appearance per character so every illustration renders them identically.

INPUT:
%s

OUTPUT JSON:
{"characters": [{"name": string, "canonical_appearance": string}]}

REQUIREMENTS:
- one entry per character, names copied verbatim from the input
- canonical_appearance is one sentence covering build or species, colors, clothing and distinguishing features

` + rawJSONTrailer

// stylePromptTemplate defines the shared visual treatment.
// %s = story title, %s = opening scene text, %s = requested treatment.
const stylePromptTemplate = `You are an expert art director for children's picture books.

TASK:
Define the base style applied to every illustration of the story below so all scenes share one consistent look.

INPUT:
- Title: %s
- Opening scene: %s
- Preferred treatment: %s

OUTPUT JSON:
{"palette": string, "lighting": string, "medium": string, "composition_notes": string}

REQUIREMENTS:
- medium names one concrete art style (watercolor, gouache, pixar, ghibli, ...)
- honor the preferred treatment when one is given
- palette and lighting must suit the story's tone
- keep each field under 25 words

` + rawJSONTrailer

// momentPromptTemplate frames a single scene.
// %s = story so far, %s = current scene text, %s = rendered style,
// %s = rendered character appearances.
//
// The style and appearance context is labelled "art direction" and
// "character appearances" on purpose: the offline text mock routes prompts
// to a stage by keyword, and this prompt must only ever read as the moment
// stage.
const momentPromptTemplate = `You are a detailed image prompt writer for children's book scenes.

TASK:
Pick the single most visual moment of the current scene and describe how to frame it.

INPUT:
- Story so far: %s
- Current scene: %s
- Shared art direction: %s
- Character appearances: %s

OUTPUT JSON:
{"moment_description": string, "camera": string, "mood": string}

REQUIREMENTS:
- moment_description captures one concrete action from the current scene, not a generic pose
- the action must logically follow from the story so far and never contradict it
- keep the characters as described in the appearances above

` + rawJSONTrailer

// BuildPlanPrompt assembles the stage-1 planning prompt from the user's
// title, premise and requested scene count.
func BuildPlanPrompt(title, premise string, sceneCount int) string {
	return fmt.Sprintf(planPromptTemplate, sceneCount, title, premise)
}

// BuildVisualProfilePrompt assembles the stage-2 prompt from the plan's
// character roster.
func BuildVisualProfilePrompt(plan *models.StoryPlan) string {
	characters, _ := json.Marshal(plan.Characters)
	return fmt.Sprintf(profilePromptTemplate, string(characters))
}

// BuildBaseStylePrompt assembles the stage-3 prompt. The opening scene text
// stands in for a setting description; styleHint is the submitter's treatment
// preference and may be empty.
func BuildBaseStylePrompt(plan *models.StoryPlan, styleHint string) string {
	opening := ""
	if len(plan.Scenes) > 0 {
		opening = plan.Scenes[0].Text
	}
	if styleHint == "" {
		styleHint = "(no preference)"
	}
	return fmt.Sprintf(stylePromptTemplate, plan.Title, opening, styleHint)
}

// BuildSceneMomentPrompt assembles the per-scene framing prompt.
// sceneIndex must be a valid index into plan.Scenes; all scenes before it
// are passed as story-so-far context.
func BuildSceneMomentPrompt(plan *models.StoryPlan, sceneIndex int, profile *models.VisualProfile, style *models.BaseStyle) string {
	soFar := "(first scene)"
	if sceneIndex > 0 {
		texts := make([]string, 0, sceneIndex)
		for _, scene := range plan.Scenes[:sceneIndex] {
			texts = append(texts, scene.Text)
		}
		soFar = strings.Join(texts, " ")
	}

	return fmt.Sprintf(momentPromptTemplate,
		soFar,
		plan.Scenes[sceneIndex].Text,
		renderBaseStyle(style),
		renderLooks(profile.Characters),
	)
}

// ComposeImagePrompt produces the final illustration prompt for one scene:
// shared style, then the canonical appearance of every character named in
// the scene's text or draft image prompt (in profile order), then the
// moment. Characters match on whole words, case-insensitively, so "Pip"
// never rides in on "Pippa".
func ComposeImagePrompt(style *models.BaseStyle, profile *models.VisualProfile, scene *models.PlannedScene, moment *models.SceneMoment) string {
	parts := []string{renderBaseStyle(style)}

	present := make([]string, 0, len(profile.Characters))
	for _, look := range profile.Characters {
		if characterMentioned(look.Name, scene.Text) || characterMentioned(look.Name, scene.ImagePrompt) {
			present = append(present, look.Name+": "+look.CanonicalAppearance)
		}
	}
	if len(present) > 0 {
		parts = append(parts, "Characters: "+strings.Join(present, "; "))
	}

	parts = append(parts, renderMoment(moment))
	return strings.Join(parts, "\n")
}

func renderBaseStyle(style *models.BaseStyle) string {
	segments := []string{"Style: " + style.Medium}
	if style.Palette != "" {
		segments = append(segments, "palette: "+style.Palette)
	}
	if style.Lighting != "" {
		segments = append(segments, "lighting: "+style.Lighting)
	}
	if style.CompositionNotes != "" {
		segments = append(segments, "composition: "+style.CompositionNotes)
	}
	return strings.Join(segments, "; ")
}

func renderLooks(looks []models.CharacterLook) string {
	if len(looks) == 0 {
		return "(none)"
	}
	rendered := make([]string, 0, len(looks))
	for _, look := range looks {
		rendered = append(rendered, look.Name+": "+look.CanonicalAppearance)
	}
	return strings.Join(rendered, "; ")
}

func renderMoment(moment *models.SceneMoment) string {
	segments := []string{moment.MomentDescription}
	if moment.Camera != "" {
		segments = append(segments, "camera: "+moment.Camera)
	}
	if moment.Mood != "" {
		segments = append(segments, "mood: "+moment.Mood)
	}
	return strings.Join(segments, "; ")
}

// characterMentioned reports whether name occurs in text as a whole word,
// ignoring case.
func characterMentioned(name, text string) bool {
	if name == "" || text == "" {
		return false
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
	return re.MatchString(text)
}
