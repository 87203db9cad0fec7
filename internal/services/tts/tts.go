package tts

import (
	"fmt"
	"strings"

	"episodegen/internal/config"
	"episodegen/internal/ports"
)

// New returns the speech provider selected by cfg.TTS.Provider.
func New(cfg *config.Config) (ports.TTS, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.TTS.Provider)) {
	case "", "gemini":
		return NewGemini(GeminiConfig{
			APIKey:         cfg.TTS.APIKey,
			BaseURL:        cfg.TTS.BaseURL,
			Model:          cfg.TTS.Model,
			TimeoutSeconds: cfg.TTS.TimeoutSeconds,
		}, nil), nil
	case "polly":
		return NewPolly(PollyConfig{Region: cfg.TTS.Region}, nil), nil
	default:
		return nil, fmt.Errorf("unsupported tts provider %q", cfg.TTS.Provider)
	}
}
