package engine

import (
	"context"
	"time"

	"github.com/kalambet/candsearch/internal/voyage"
)

// VoyageEngine adapts the internal/voyage.Client to the Engine interface.
type VoyageEngine struct {
	client *voyage.Client
}

// NewVoyageEngine creates a VoyageEngine for the given API root and key.
func NewVoyageEngine(baseURL, apiKey string, timeout time.Duration) *VoyageEngine {
	return &VoyageEngine{client: voyage.New(baseURL, apiKey, timeout)}
}

func (e *VoyageEngine) Name() string { return "voyage" }

func (e *VoyageEngine) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return e.client.Embed(ctx, model, texts)
}
