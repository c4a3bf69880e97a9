package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that a locally hosted engine is reachable and has the
// embedding model available, writing status lines to w. Remote engines that
// cannot be probed are assumed ready.
func EnsureReady(ctx context.Context, e Engine, model string, w io.Writer) error {
	p, ok := e.(Prober)
	if !ok {
		return nil
	}

	if !p.IsRunning(ctx) {
		return fmt.Errorf("%s engine is not running; please ensure the backend is started", e.Name())
	}
	if !p.HasModel(ctx, model) {
		return fmt.Errorf("model %s is not available in %s; pull it before running", model, e.Name())
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}
