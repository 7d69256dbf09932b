package browser

import (
	"context"
	"time"
)

// Driver is the page-automation surface the portal code depends on. All
// methods honor ctx cancellation and return classified errors; selector
// arguments are CSS selectors unless noted.
type Driver interface {
	// Navigate loads url and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// Fill clears the matched input and types value into it.
	Fill(ctx context.Context, selector, value string) error
	// Click clicks the first node matching selector.
	Click(ctx context.Context, selector string) error
	// SelectOption chooses the option with the given value attribute in a
	// select element.
	SelectOption(ctx context.Context, selector, value string) error
	// WaitFor blocks until selector matches a visible node.
	WaitFor(ctx context.Context, selector string) error
	// WaitReady blocks until selector matches a node attached to the DOM,
	// visible or not.
	WaitReady(ctx context.Context, selector string) error
	// Evaluate runs a JavaScript expression and unmarshals the result into
	// out. Pass nil to discard the result.
	Evaluate(ctx context.Context, expression string, out any) error
	// IsAlive reports whether the underlying browser target still responds.
	IsAlive(ctx context.Context) bool
	// Close tears down the browser process. Safe to call more than once.
	Close() error
}

// Factory creates a fresh Driver. The scheduler calls it every time a session
// is replaced, so implementations must not share browser state across calls.
type Factory func(ctx context.Context) (Driver, error)

// PollUntil invokes probe every interval until it returns true, probe returns
// an error, or ctx expires. It is the bounded-wait primitive used wherever
// the portal renders asynchronously.
func PollUntil(ctx context.Context, interval time.Duration, probe func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		done, err := probe(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
