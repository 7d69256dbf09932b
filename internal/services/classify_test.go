package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifySessionDeathSignatures(t *testing.T) {
	raw := []string{
		"Target closed",
		"chrome failed: browser has been closed",
		"websocket: close 1006 (abnormal closure)",
		"could not reach Target Page after reload",
		"rpc error: session not found",
		"page crashed during evaluate",
		"dial tcp 127.0.0.1:9222: connection refused",
	}
	for _, text := range raw {
		err := ClassifySessionError(errors.New(text))
		if !errors.Is(err, ErrSessionDead) {
			t.Errorf("%q should classify as session death, got %v", text, err)
		}
	}
}

func TestClassifyDeadlineExceeded(t *testing.T) {
	err := ClassifySessionError(fmt.Errorf("navigate: %w", context.DeadlineExceeded))
	if !errors.Is(err, ErrNavigationTimeout) {
		t.Errorf("deadline errors should classify as navigation timeout, got %v", err)
	}
}

func TestClassifyLeavesCancellationAlone(t *testing.T) {
	err := ClassifySessionError(fmt.Errorf("fetch: %w", context.Canceled))
	if !errors.Is(err, context.Canceled) {
		t.Error("cancellation must survive classification")
	}
	if errors.Is(err, ErrSessionDead) || errors.Is(err, ErrNavigationTimeout) {
		t.Error("cancellation must not be reinterpreted")
	}
}

func TestClassifyPassesThroughTaggedErrors(t *testing.T) {
	tagged := Wrap(ErrExtraction, "fetcher", "parse", "target closed in message", nil)
	err := ClassifySessionError(tagged)
	if !errors.Is(err, ErrExtraction) {
		t.Error("already classified errors must pass through unchanged")
	}
	if errors.Is(err, ErrSessionDead) {
		t.Error("classification must not re-tag an extraction error")
	}
}

func TestClassifyUnknownErrorUnchanged(t *testing.T) {
	raw := errors.New("some unrelated failure")
	if got := ClassifySessionError(raw); got != raw {
		t.Errorf("unknown errors should pass through, got %v", got)
	}
}

func TestClassifyNil(t *testing.T) {
	if ClassifySessionError(nil) != nil {
		t.Error("nil should classify to nil")
	}
}
