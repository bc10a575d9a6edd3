package engine

import (
	"context"
	"time"
)

// StartupChecks verifies the engine can run here and warms it up off the request path.
// The returned channel reports the warm-up outcome once, then closes.
func (serverHandler *ServerHandler) StartupChecks() <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)
		start := time.Now()
		_, err := serverHandler.Loader.Acquire(context.Background())
		if err != nil {
			Logger.Warn("Rendering engine warm-up failed, will retry on first conversion",
				"backend", serverHandler.Loader.Backend(), "error", err)
			result <- err
			return
		}
		Logger.Info("Rendering engine warmed up", "backend", serverHandler.Loader.Backend(),
			"isolated", serverHandler.Loader.Isolated(), "duration", time.Since(start))
		result <- nil
	}()
	return result
}
