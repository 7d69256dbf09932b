package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuth marks a login that never reached the authenticated state.
	ErrAuth = errors.New("authentication error")
	// ErrSessionDead marks a browser session that no longer responds.
	ErrSessionDead = errors.New("session dead")
	// ErrNavigationTimeout marks a page transition that did not finish in time.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrExtraction marks a missing or malformed result table.
	ErrExtraction = errors.New("extraction error")
	// ErrFatal marks a failure that escaped every recovery layer.
	ErrFatal = errors.New("fatal")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExtraction
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// RequiresSessionRestart reports whether the error category is fixed by
// replacing the browser session rather than retrying in place.
func RequiresSessionRestart(err error) bool {
	return errors.Is(err, ErrSessionDead) || errors.Is(err, ErrAuth)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
