package services

import (
	"context"
	"errors"
	"strings"
)

// Session-death signatures observed from the automation driver. The list is
// closed on purpose: new signatures get added here with a test, never matched
// ad hoc at call sites.
var sessionDeathSignatures = []string{
	"target closed",
	"target crashed",
	"target page",
	"browser has been closed",
	"session closed",
	"session not found",
	"websocket url timeout",
	"websocket: close",
	"page crashed",
	"connection refused",
	"browser process exited",
}

// ClassifySessionError maps a raw driver error to the pipeline taxonomy.
// Already-classified errors pass through unchanged. Context cancellation is
// never reinterpreted; it must keep aborting the run.
func ClassifySessionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrSessionDead) ||
		errors.Is(err, ErrNavigationTimeout) || errors.Is(err, ErrExtraction) {
		return err
	}

	text := strings.ToLower(err.Error())
	for _, signature := range sessionDeathSignatures {
		if strings.Contains(text, signature) {
			return Wrap(ErrSessionDead, "", "", "", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(text, "deadline exceeded") {
		return Wrap(ErrNavigationTimeout, "", "", "", err)
	}
	return err
}
