package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/fluffypony/llm-proxifier/pkg/httperr"
)

// TimeoutMiddleware enforces a per-request timeout using context.WithTimeout.
// If the timeout is exceeded, the request context is cancelled and a 504
// Gateway Timeout error is returned.
//
// The timeout applies to the entire request processing pipeline including
// provider requests. Handlers should check context.Done() to detect cancellation.
//
// Example usage:
//
//	handler = TimeoutMiddleware(60 * time.Second)(handler)
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Create timeout context
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			// Create a channel to signal completion
			done := make(chan struct{})

			// Run handler in goroutine
			go func() {
				defer close(done)
				next.ServeHTTP(w, r.WithContext(ctx))
			}()

			// Wait for completion or timeout
			select {
			case <-done:
				// Request completed successfully
				return

			case <-ctx.Done():
				// Timeout occurred
				if ctx.Err() == context.DeadlineExceeded {
					httperr.Write(w, http.StatusGatewayTimeout, httperr.Timeout,
						"Request timeout: the request took too long to complete")
				}
			}
		})
	}
}
