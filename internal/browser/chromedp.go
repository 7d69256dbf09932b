package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/chromedp"

	"github.com/AndresPaulino/parking-garage-report/internal/config"
	"github.com/AndresPaulino/parking-garage-report/internal/logging"
	"github.com/AndresPaulino/parking-garage-report/internal/services"
)

// chromeDriver implements Driver on a dedicated Chrome process managed by
// chromedp. Each instance owns its own allocator, so closing one driver never
// disturbs a replacement session.
type chromeDriver struct {
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	runCtx      context.Context

	navigationTimeout time.Duration

	closeOnce sync.Once
	crashed   atomic.Bool
	logger    *slog.Logger
}

// NewChromeFactory returns a Factory that launches headless Chrome configured
// from the portal settings.
func NewChromeFactory(cfg config.Portal, logger *slog.Logger) Factory {
	return func(ctx context.Context) (Driver, error) {
		return newChromeDriver(ctx, cfg, logger)
	}
}

func newChromeDriver(ctx context.Context, cfg config.Portal, logger *slog.Logger) (*chromeDriver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(1600, 1000),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	runCtx, ctxCancel := chromedp.NewContext(allocCtx)

	d := &chromeDriver{
		allocCancel:       allocCancel,
		ctxCancel:         ctxCancel,
		runCtx:            runCtx,
		navigationTimeout: time.Duration(cfg.NavigationTimeout) * time.Second,
		logger:            logging.NewComponentLogger(logger, "browser"),
	}

	chromedp.ListenTarget(runCtx, func(ev any) {
		switch ev.(type) {
		case *inspector.EventTargetCrashed, *inspector.EventDetached:
			d.crashed.Store(true)
			d.logger.Warn("chrome target lost")
		}
	})

	// Start the browser process eagerly so failures surface here rather
	// than on the first navigation.
	startCtx, cancel := context.WithTimeout(runCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		d.Close()
		return nil, services.Wrap(services.ErrFatal, "browser", "launch", "starting chrome", err)
	}
	d.logger.Debug("chrome session started", logging.Bool("headless", cfg.Headless))
	return d, nil
}

func (d *chromeDriver) run(ctx context.Context, operation string, actions ...chromedp.Action) error {
	timeout := d.navigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opCtx, cancel := context.WithTimeout(mergeContexts(d.runCtx, ctx), timeout)
	defer cancel()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		return services.ClassifySessionError(fmt.Errorf("browser %s: %w", operation, err))
	}
	return nil
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, "navigate", chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (d *chromeDriver) Fill(ctx context.Context, selector, value string) error {
	return d.run(ctx, "fill",
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (d *chromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, "click",
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (d *chromeDriver) SelectOption(ctx context.Context, selector, value string) error {
	// SetValue alone does not fire the change event the portal's postback
	// handlers listen for, so dispatch it explicitly.
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) { return false; }
		el.value = %q;
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return el.value === %q;
	})()`, selector, value, value)
	var ok bool
	if err := d.run(ctx, "select",
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Evaluate(expr, &ok),
	); err != nil {
		return err
	}
	if !ok {
		return services.Wrap(services.ErrExtraction, "browser", "select",
			fmt.Sprintf("option %q not present in %s", value, selector), nil)
	}
	return nil
}

func (d *chromeDriver) WaitFor(ctx context.Context, selector string) error {
	return d.run(ctx, "wait_visible", chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *chromeDriver) WaitReady(ctx context.Context, selector string) error {
	return d.run(ctx, "wait_ready", chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (d *chromeDriver) Evaluate(ctx context.Context, expression string, out any) error {
	if out == nil {
		var discard json.RawMessage
		out = &discard
	}
	return d.run(ctx, "evaluate", chromedp.Evaluate(expression, out))
}

func (d *chromeDriver) IsAlive(ctx context.Context) bool {
	if d.crashed.Load() {
		return false
	}
	probeCtx, cancel := context.WithTimeout(mergeContexts(d.runCtx, ctx), 5*time.Second)
	defer cancel()
	var title string
	err := chromedp.Run(probeCtx, chromedp.Evaluate("document.title", &title))
	if err == nil {
		return true
	}
	// A slow page is not a dead browser; only hard disconnects count.
	return !isDisconnect(err)
}

func (d *chromeDriver) Close() error {
	d.closeOnce.Do(func() {
		d.ctxCancel()
		d.allocCancel()
		d.logger.Debug("chrome session closed")
	})
	return nil
}

func isDisconnect(err error) bool {
	if err == nil {
		return false
	}
	classified := services.ClassifySessionError(err)
	return services.RequiresSessionRestart(classified) || strings.Contains(strings.ToLower(err.Error()), "context canceled")
}

// mergeContexts returns a context derived from parent that is also canceled
// when caller is. chromedp actions must run on the browser's context chain,
// but the scheduler's cancellation still needs to cut operations short.
func mergeContexts(parent, caller context.Context) context.Context {
	if caller == nil || caller == context.Background() {
		return parent
	}
	merged, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-caller.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged
}
