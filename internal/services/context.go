package services

import "context"

type contextKey string

const (
	accountKey contextKey = "account"
	batchKey   contextKey = "batch"
	runIDKey   contextKey = "run_id"
)

// WithAccount annotates context with the account currently in flight.
func WithAccount(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, accountKey, name)
}

// AccountFromContext returns the in-flight account name if present.
func AccountFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(accountKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBatch annotates context with the one-based batch index.
func WithBatch(ctx context.Context, index int) context.Context {
	if index <= 0 {
		return ctx
	}
	return context.WithValue(ctx, batchKey, index)
}

// BatchFromContext returns the batch index if present.
func BatchFromContext(ctx context.Context) (int, bool) {
	if v, ok := ctx.Value(batchKey).(int); ok && v > 0 {
		return v, true
	}
	return 0, false
}

// WithRunID annotates context with the run correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
