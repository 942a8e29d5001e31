// Package campaign loads the adventure content that shapes narration: the
// narrator persona, the opening scene and the prompt templates for each
// generated text and image.
package campaign

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type yamlFile struct {
	Campaign yamlCampaign `yaml:"campaign"`
}

type yamlCampaign struct {
	ID              string   `yaml:"id"`
	Title           string   `yaml:"title"`
	SystemPrompt    string   `yaml:"system_prompt"`
	OpeningScene    string   `yaml:"opening_scene"`
	OpeningKeywords string   `yaml:"opening_keywords"`
	OpeningSummary  string   `yaml:"opening_summary"`
	TurnPrompt      string   `yaml:"turn_prompt"`
	AvatarPrompt    string   `yaml:"avatar_prompt"`
	ScenePrompt     string   `yaml:"scene_prompt"`
	MapPrompt       string   `yaml:"map_prompt"`
	StaticResponses []string `yaml:"static_responses"`
}

// Campaign is validated adventure content with compiled templates.
type Campaign struct {
	ID              string
	Title           string
	SystemPrompt    string
	OpeningScene    string
	OpeningKeywords string
	OpeningSummary  string
	// StaticResponses feed the static narrator.
	StaticResponses []string

	turn   *template.Template
	avatar *template.Template
	scene  *template.Template
	mapT   *template.Template
}

// TurnContext feeds the turn prompt template.
type TurnContext struct {
	Player    string
	Character string
	Action    string
	Roll      int
	Outcome   string
}

// Default returns the built-in campaign.
//
// Postcondition: Never fails; the embedded content is validated by tests.
func Default() *Campaign {
	c, err := LoadFromBytes(defaultYAML)
	if err != nil {
		panic("campaign: built-in campaign is invalid: " + err.Error())
	}
	return c
}

// Load returns the campaign at path, or the built-in campaign when path is empty.
//
// Postcondition: Returns a validated Campaign or a non-nil error.
func Load(path string) (*Campaign, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading campaign file %s: %w", path, err)
	}
	c, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("campaign file %s: %w", path, err)
	}
	return c, nil
}

// LoadFromBytes parses and validates a campaign from YAML bytes.
//
// Precondition: data must be valid YAML conforming to the campaign schema.
// Postcondition: Returns a validated Campaign or a non-nil error.
func LoadFromBytes(data []byte) (*Campaign, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing campaign yaml: %w", err)
	}
	y := f.Campaign
	if y.ID == "" {
		return nil, errors.New("campaign: id must not be empty")
	}
	if strings.TrimSpace(y.OpeningScene) == "" {
		return nil, fmt.Errorf("campaign %q: opening_scene must not be empty", y.ID)
	}
	if strings.TrimSpace(y.TurnPrompt) == "" {
		return nil, fmt.Errorf("campaign %q: turn_prompt must not be empty", y.ID)
	}

	c := &Campaign{
		ID:              y.ID,
		Title:           y.Title,
		SystemPrompt:    strings.TrimSpace(y.SystemPrompt),
		OpeningScene:    strings.TrimSpace(y.OpeningScene),
		OpeningKeywords: y.OpeningKeywords,
		OpeningSummary:  y.OpeningSummary,
		StaticResponses: y.StaticResponses,
	}
	if c.OpeningKeywords == "" {
		c.OpeningKeywords = "opening"
	}
	if c.OpeningSummary == "" {
		c.OpeningSummary = "Game begins"
	}

	var err error
	if c.turn, err = compile(y.ID, "turn_prompt", y.TurnPrompt); err != nil {
		return nil, err
	}
	if c.avatar, err = compile(y.ID, "avatar_prompt", y.AvatarPrompt); err != nil {
		return nil, err
	}
	if c.scene, err = compile(y.ID, "scene_prompt", y.ScenePrompt); err != nil {
		return nil, err
	}
	if c.mapT, err = compile(y.ID, "map_prompt", y.MapPrompt); err != nil {
		return nil, err
	}
	return c, nil
}

func compile(id, name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("campaign %q: %s: %w", id, name, err)
	}
	return t, nil
}

// TurnPrompt renders the user prompt for an action. memories, when
// non-empty, precedes the turn description.
func (c *Campaign) TurnPrompt(tc TurnContext, memories string) (string, error) {
	body, err := render(c.turn, tc)
	if err != nil {
		return "", err
	}
	if memories == "" {
		return body, nil
	}
	return memories + "\n" + body, nil
}

// AvatarPrompt renders the image prompt for a character portrait.
//
// Postcondition: Returns "" when the template renders blank, meaning no image.
func (c *Campaign) AvatarPrompt(character string) (string, error) {
	return render(c.avatar, struct{ Character string }{character})
}

// ScenePrompt renders the image prompt illustrating a narration.
func (c *Campaign) ScenePrompt(narration string) (string, error) {
	return render(c.scene, struct{ Narration string }{narration})
}

// MapPrompt renders the image prompt for the shared map.
func (c *Campaign) MapPrompt(narration string) (string, error) {
	return render(c.mapT, struct{ Narration string }{narration})
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}
