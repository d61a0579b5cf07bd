package tsnego

import (
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with embedding-run specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogRunStart logs the parameters of an embedding run.
func (l *Logger) LogRunStart(n, d, dims int, perplexity, theta float64, maxIter int) {
	l.Info("embedding run started",
		"points", n,
		"input_dims", d,
		"output_dims", dims,
		"perplexity", perplexity,
		"theta", theta,
		"max_iter", maxIter,
	)
}

// LogAffinities logs completion of the similarity model construction.
func (l *Logger) LogAffinities(n, nnz int, exact bool, duration time.Duration, err error) {
	if err != nil {
		l.Error("affinity computation failed",
			"points", n,
			"error", err,
		)
		return
	}
	l.Debug("affinities computed",
		"points", n,
		"entries", nnz,
		"exact", exact,
		"duration", duration,
	)
}

// LogProgress logs the divergence at a reporting interval.
func (l *Logger) LogProgress(iter int, kl float64) {
	l.Info("optimization progress",
		"iteration", iter,
		"kl_divergence", kl,
	)
}

// LogPhase logs a phase transition of the optimization schedule.
func (l *Logger) LogPhase(iter int, phase string) {
	l.Debug("phase transition",
		"iteration", iter,
		"phase", phase,
	)
}

// LogRunDone logs completion of an embedding run.
func (l *Logger) LogRunDone(n, dims int, duration time.Duration, err error) {
	if err != nil {
		l.Error("embedding run failed",
			"error", err,
		)
		return
	}
	l.Info("embedding run completed",
		"points", n,
		"output_dims", dims,
		"duration", duration,
	)
}
