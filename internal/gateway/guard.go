package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Guard bounds provider calls with timeouts and converts failures into
// fallbacks. Guard methods never return errors.
type Guard struct {
	narrator      Narrator
	imager        Imager
	fallback      string
	narrateWithin time.Duration
	imageWithin   time.Duration
	logger        *zap.Logger
}

// GuardConfig parameterizes a Guard.
type GuardConfig struct {
	// Fallback replaces narration when the narrator fails.
	Fallback string
	// NarrationTimeout bounds one narration call; zero disables the bound.
	NarrationTimeout time.Duration
	// ImageTimeout bounds one image call; zero disables the bound.
	ImageTimeout time.Duration
}

// NewGuard wraps narrator and imager.
//
// Precondition: narrator, imager and logger must be non-nil.
func NewGuard(narrator Narrator, imager Imager, cfg GuardConfig, logger *zap.Logger) *Guard {
	return &Guard{
		narrator:      narrator,
		imager:        imager,
		fallback:      cfg.Fallback,
		narrateWithin: cfg.NarrationTimeout,
		imageWithin:   cfg.ImageTimeout,
		logger:        logger,
	}
}

// Fallback returns the narration used when the narrator fails.
func (g *Guard) Fallback() string {
	return g.fallback
}

// Narrate asks the narrator for a reply.
//
// Postcondition: On provider error, timeout or empty text, returns the
// fallback text with Structured true and no items.
func (g *Guard) Narrate(ctx context.Context, p Prompt) Narration {
	ctx, cancel := bound(ctx, g.narrateWithin)
	defer cancel()

	start := time.Now()
	n, err := g.narrator.Narrate(ctx, p)
	if err == nil && strings.TrimSpace(n.Text) == "" {
		err = ErrUnavailable
	}
	if err != nil {
		g.logger.Warn("narration failed, using fallback",
			zap.Error(err),
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			zap.Duration("elapsed", time.Since(start)),
		)
		return Narration{Text: g.fallback, Structured: true}
	}
	g.logger.Debug("narration generated",
		zap.Int("chars", len(n.Text)),
		zap.Int("items", len(n.Items)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return n
}

// Image asks the imager for a picture.
//
// Postcondition: Returns "" on any failure.
func (g *Guard) Image(ctx context.Context, kind Kind, prompt string) string {
	if prompt == "" {
		return ""
	}
	ctx, cancel := bound(ctx, g.imageWithin)
	defer cancel()

	start := time.Now()
	ref, err := g.imager.Generate(ctx, kind, prompt)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			g.logger.Warn("image generation failed",
				zap.String("kind", string(kind)),
				zap.Error(err),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
		return ""
	}
	g.logger.Debug("image generated",
		zap.String("kind", string(kind)),
		zap.Int("bytes", len(ref)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ref
}

func bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
