package config

// Defaults contains request-level defaults applied when a submission
// omits the corresponding field.
type Defaults struct {
	// SceneCount is the number of scenes planned when the request does
	// not say how many it wants.
	SceneCount int `yaml:"scene_count,omitempty"`

	// Style is the art direction hint fed to the planning and style
	// prompts when the request carries none.
	Style string `yaml:"style,omitempty"`
}

// MaxSceneCount caps how many scenes a single submission may request.
const MaxSceneCount = 10

// DefaultDefaults returns the built-in request defaults.
func DefaultDefaults() *Defaults {
	return &Defaults{
		SceneCount: 5,
		Style:      "soft watercolor storybook",
	}
}
