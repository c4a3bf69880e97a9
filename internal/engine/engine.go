package engine

import "context"

// Engine abstracts an embedding backend (Voyage AI, Ollama, or any service
// with a batch embed call). The retrieval layer depends on this interface
// instead of a concrete client.
type Engine interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)

	// Name identifies the backend in logs.
	Name() string
}

// Prober is implemented by engines that can report local readiness.
type Prober interface {
	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool
}
