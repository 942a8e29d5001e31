// Package gateway adapts text and image generation services to the game.
// Providers may fail or hang; Guard turns every failure into a fallback so a
// turn never fails because of a provider.
package gateway

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrUnavailable is returned by providers that produced no usable output.
var ErrUnavailable = errors.New("gateway unavailable")

// Prompt is a narration request.
type Prompt struct {
	// System sets the narrator's persona and rules.
	System string
	// User carries the turn context.
	User string
}

// Narration is a narrator reply.
type Narration struct {
	Text string
	// Items lists items the narration grants the acting player.
	Items []string
	// Structured reports whether the provider declared Items explicitly.
	// When false, callers fall back to scanning Text.
	Structured bool
}

// Narrator produces narration text.
type Narrator interface {
	Narrate(ctx context.Context, p Prompt) (Narration, error)
}

// Kind selects the framing of a generated image.
type Kind string

const (
	KindAvatar Kind = "avatar"
	KindScene  Kind = "scene"
	KindMap    Kind = "map"
)

// Imager produces images as base64-encoded PNG data.
type Imager interface {
	Generate(ctx context.Context, kind Kind, prompt string) (string, error)
}

var itemsLine = regexp.MustCompile(`(?i)^\s*items\s*:\s*(.*?)\s*$`)

// SplitItems separates a trailing "Items: a, b" line from narration text.
// A trailing "Items: none" or "Items:" declares that nothing was granted.
//
// Postcondition: When no such line exists, returns the trimmed text with
// Structured false.
func SplitItems(text string) Narration {
	trimmed := strings.TrimRight(text, " \t\r\n")
	idx := strings.LastIndexByte(trimmed, '\n')
	last := trimmed[idx+1:]
	m := itemsLine.FindStringSubmatch(last)
	if m == nil {
		return Narration{Text: strings.TrimSpace(trimmed)}
	}
	body := ""
	if idx >= 0 {
		body = trimmed[:idx]
	}
	n := Narration{Text: strings.TrimSpace(body), Structured: true}
	list := m[1]
	if strings.EqualFold(list, "none") {
		return n
	}
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			n.Items = append(n.Items, item)
		}
	}
	return n
}
