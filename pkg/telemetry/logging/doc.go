// Package logging wraps Go's standard log/slog package with a pass-through
// writer (log writes are synchronous) and request-ID-aware context helpers.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logger.Info("model started", "model", "m1", "port", 11001)
//
//	ctx := context.WithValue(ctx, logging.RequestIDKey, "req-123")
//	logger.InfoContext(ctx, "forwarding request") // includes request_id
//
// Components that take a plain *slog.Logger (the scheduler, queue
// manager, and model instances) receive one via Logger.Slog().
package logging
