package gateway

import (
	"context"
	"sync"
)

// Static is a Narrator that replays fixed lines in order. It backs the
// "static" provider used for local play and tests.
type Static struct {
	mu    sync.Mutex
	lines []string
	next  int
}

// NewStatic returns a Narrator cycling through lines.
//
// Postcondition: With no lines, Narrate returns ErrUnavailable.
func NewStatic(lines ...string) *Static {
	return &Static{lines: lines}
}

func (s *Static) Narrate(ctx context.Context, _ Prompt) (Narration, error) {
	if err := ctx.Err(); err != nil {
		return Narration{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return Narration{}, ErrUnavailable
	}
	line := s.lines[s.next%len(s.lines)]
	s.next++
	return SplitItems(line), nil
}

// NoImages is an Imager for deployments without image generation.
type NoImages struct{}

func (NoImages) Generate(context.Context, Kind, string) (string, error) {
	return "", ErrUnavailable
}
