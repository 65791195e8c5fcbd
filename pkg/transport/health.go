package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-framepace/internal/httpc"
)

// CheckHealth performs a single GET against the backend health endpoint.
func CheckHealth(ctx context.Context, healthURL string) error {
	resp, err := httpc.Get(ctx, healthURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}

// WaitForBackend polls healthURL every interval until it answers 200 OK
// or ctx is done.
func WaitForBackend(ctx context.Context, healthURL string, interval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempt := 0
	for {
		attempt++
		err := CheckHealth(ctx, healthURL)
		if err == nil {
			logger.Info("backend is healthy", "url", healthURL, "attempts", attempt)
			return nil
		}
		logger.Debug("backend not ready", "url", healthURL, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for backend: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}
