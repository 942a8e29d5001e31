package gateway

import (
	"fmt"

	"github.com/cory-johannsen/dungeonmaster/internal/config"
)

// NewNarrator builds the narrator selected by cfg.Provider. staticLines feed
// the "static" provider.
func NewNarrator(cfg config.NarrationConfig, staticLines []string) (Narrator, error) {
	switch cfg.Provider {
	case "static":
		return NewStatic(staticLines...), nil
	case "anthropic":
		return NewAnthropicNarrator(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens), nil
	case "openai":
		return NewOpenAINarrator(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown narration provider %q", cfg.Provider)
	}
}

// NewImager builds the imager selected by cfg.Provider.
func NewImager(cfg config.ImagesConfig) (Imager, error) {
	switch cfg.Provider {
	case "none":
		return NoImages{}, nil
	case "openai":
		return NewOpenAIImager(cfg.APIKey, cfg.BaseURL, cfg.Model, map[Kind]string{
			KindAvatar: cfg.AvatarSize,
			KindScene:  cfg.SceneSize,
			KindMap:    cfg.MapSize,
		}), nil
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.Provider)
	}
}
