package engine

import (
	"context"
	"io"
	"strings"
	"testing"
)

type mockEngine struct {
	isRunning bool
	models    map[string]bool
}

func (m *mockEngine) Name() string { return "mock" }
func (m *mockEngine) Embed(_ context.Context, _ string, _ []string) ([][]float32, error) {
	return nil, nil
}
func (m *mockEngine) IsRunning(_ context.Context) bool             { return m.isRunning }
func (m *mockEngine) HasModel(_ context.Context, name string) bool { return m.models[name] }

// remoteEngine cannot be probed.
type remoteEngine struct{}

func (remoteEngine) Name() string { return "remote" }
func (remoteEngine) Embed(_ context.Context, _ string, _ []string) ([][]float32, error) {
	return nil, nil
}

func TestEnsureReady_ModelPresent(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{"nomic-embed-text": true}}
	if err := EnsureReady(context.Background(), m, "nomic-embed-text", io.Discard); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
}

func TestEnsureReady_ModelMissing(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{}}
	err := EnsureReady(context.Background(), m, "nomic-embed-text", io.Discard)
	if err == nil {
		t.Fatal("expected error for missing model")
	}
	if !strings.Contains(err.Error(), "nomic-embed-text") {
		t.Errorf("error = %q, want it to name the model", err)
	}
}

func TestEnsureReady_EngineDown(t *testing.T) {
	m := &mockEngine{isRunning: false}
	if err := EnsureReady(context.Background(), m, "nomic-embed-text", io.Discard); err == nil {
		t.Fatal("expected error when engine is down")
	}
}

func TestEnsureReady_RemoteSkipped(t *testing.T) {
	if err := EnsureReady(context.Background(), remoteEngine{}, "voyage-3", io.Discard); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
}
