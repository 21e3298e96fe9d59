package models

// StoryPlan is the single source of truth for a story's structure, produced
// by the planning stage before any scene work starts.
type StoryPlan struct {
	Title      string         `json:"title"`
	Characters []Character    `json:"characters"`
	Scenes     []PlannedScene `json:"scenes"`
}

// Character is a recurring figure the plan introduces once so later stages
// can keep its look consistent across scenes.
type Character struct {
	Name              string `json:"name"`
	Role              string `json:"role"`
	VisualDescription string `json:"visual_description"`
}

// PlannedScene is one scene of the plan. ImagePrompt here is the planner's
// draft; the final illustration prompt is composed later from the style,
// profile and moment.
type PlannedScene struct {
	Sequence    int    `json:"sequence"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	ImagePrompt string `json:"image_prompt"`
}

// VisualProfile locks each character to one canonical appearance so every
// illustration renders them identically.
type VisualProfile struct {
	Characters []CharacterLook `json:"characters"`
}

// CharacterLook is the frozen appearance of a single character.
type CharacterLook struct {
	Name                string `json:"name"`
	CanonicalAppearance string `json:"canonical_appearance"`
}

// BaseStyle is the shared visual treatment applied to every scene of a story.
type BaseStyle struct {
	Palette          string `json:"palette"`
	Lighting         string `json:"lighting"`
	Medium           string `json:"medium"`
	CompositionNotes string `json:"composition_notes"`
}

// SceneMoment is the per-scene framing: the instant to depict and how to
// shoot it.
type SceneMoment struct {
	MomentDescription string `json:"moment_description"`
	Camera            string `json:"camera"`
	Mood              string `json:"mood"`
}
