package engine

import (
	"fmt"
	"time"
)

// Provider names accepted by Detect.
const (
	ProviderVoyage = "voyage"
	ProviderOllama = "ollama"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider      string
	VoyageBaseURL string
	VoyageAPIKey  string
	OllamaBaseURL string
	Timeout       time.Duration
}

// Detect returns the embedding backend named by cfg.Provider. An empty
// provider selects Voyage.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Provider {
	case "", ProviderVoyage:
		return NewVoyageEngine(cfg.VoyageBaseURL, cfg.VoyageAPIKey, cfg.Timeout), nil
	case ProviderOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (want %q or %q)", cfg.Provider, ProviderVoyage, ProviderOllama)
	}
}
