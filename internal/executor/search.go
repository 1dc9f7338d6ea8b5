package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"orderscout/internal/browser"
	"orderscout/internal/config"
	"orderscout/internal/extract"
	"orderscout/internal/logging"
	"orderscout/internal/registry"
)

// SearchExecutor runs one keyword search under an authenticated session's
// cookies and extracts the ranked order records.
type SearchExecutor struct {
	pool *browser.Pool
	reg  *registry.Registry
	conf func() *config.Config
	now  func() time.Time
}

// NewSearchExecutor wires the executor.
func NewSearchExecutor(pool *browser.Pool, reg *registry.Registry, conf func() *config.Config) *SearchExecutor {
	return &SearchExecutor{pool: pool, reg: reg, conf: conf, now: time.Now}
}

// Search borrows a session, installs the session's cookie jar, performs
// the query and returns ranked orders. The primary strategy drives the
// page's own search UI; any failure there falls back once to direct URL
// navigation before an error surfaces.
func (e *SearchExecutor) Search(ctx context.Context, keyword, sessionID string) ([]extract.Order, error) {
	cfg := e.conf()

	jar, err := e.reg.Cookies(sessionID)
	if err != nil {
		if errors.Is(err, registry.ErrMissingCredentialState) {
			return nil, fmt.Errorf("%w: %v", ErrNoCookiesForSession, err)
		}
		return nil, err
	}

	session, err := e.pool.Acquire(ctx, cfg.Timing.AcquireTimeout())
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}
	defer e.pool.Release(session)

	logging.Search("searching %q on session %s [registry %s]", keyword, session.ID, sessionID)
	d := session.Driver()

	if err := installCookies(ctx, d, cfg, jar); err != nil {
		return nil, err
	}

	orders, primaryErr := e.searchViaUI(ctx, d, cfg, keyword)
	if primaryErr == nil {
		return orders, nil
	}
	logging.SearchWarn("primary search for %q failed, falling back to URL navigation: %v", keyword, primaryErr)

	orders, fallbackErr := e.searchViaURL(ctx, d, cfg, keyword)
	if fallbackErr == nil {
		return orders, nil
	}
	if errors.Is(fallbackErr, browser.ErrWaitTimeout) {
		return nil, fmt.Errorf("%w: %q", ErrSearchTimeout, keyword)
	}
	return nil, fmt.Errorf("%w: search %q: %v (primary: %v)", ErrAutomationFault, keyword, fallbackErr, primaryErr)
}

// installCookies re-establishes the authenticated identity inside a
// freshly borrowed session: stable page, wipe, install jar, reload, then
// wait for the cookies to be observably applied.
func installCookies(ctx context.Context, d browser.PageDriver, cfg *config.Config, jar []registry.Cookie) error {
	if err := d.Navigate(ctx, cfg.Endpoints.OrdersURL); err != nil {
		return fmt.Errorf("%w: open orders page: %v", ErrAutomationFault, err)
	}
	if err := d.ClearBrowsingState(ctx); err != nil {
		return fmt.Errorf("%w: clear state: %v", ErrAutomationFault, err)
	}
	if err := d.SetCookies(ctx, jar); err != nil {
		return fmt.Errorf("%w: install cookies: %v", ErrAutomationFault, err)
	}
	if err := d.Reload(ctx); err != nil {
		return fmt.Errorf("%w: reload after cookie install: %v", ErrAutomationFault, err)
	}
	if err := browser.WaitReady(ctx, d, cfg.Timing.PageReady(), cfg.Timing.PollInterval()); err != nil {
		return fmt.Errorf("%w: page not ready after cookie install", ErrSearchTimeout)
	}
	if err := browser.WaitCookiesApplied(ctx, d, cfg.Timing.MinCookies(),
		cfg.Timing.CookiesApplied(), cfg.Timing.PollInterval()); err != nil {
		// Not fatal: some accounts legitimately carry few cookies. The
		// search itself will show whether authentication held.
		logging.SearchWarn("cookie-applied wait expired, continuing")
	}
	return nil
}

// searchViaUI drives the page's own search controls.
func (e *SearchExecutor) searchViaUI(ctx context.Context, d browser.PageDriver, cfg *config.Config, keyword string) ([]extract.Order, error) {
	sel := cfg.Selectors

	if len(sel.SearchButton) > 0 {
		if err := d.Click(ctx, sel.SearchButton); err != nil {
			return nil, fmt.Errorf("open search control: %w", err)
		}
	}
	if err := typeVerified(ctx, d, sel.SearchInput, keyword); err != nil {
		return nil, fmt.Errorf("type keyword: %w", err)
	}
	if err := d.Submit(ctx, sel.SearchInput); err != nil {
		return nil, fmt.Errorf("submit search: %w", err)
	}

	if err := e.waitResultsSettled(ctx, d, cfg); err != nil {
		return nil, err
	}
	return e.extractPage(ctx, d, cfg, keyword)
}

// searchViaURL is the fallback: navigate straight to the parameterized
// search endpoint.
func (e *SearchExecutor) searchViaURL(ctx context.Context, d browser.PageDriver, cfg *config.Config, keyword string) ([]extract.Order, error) {
	target := cfg.Endpoints.SearchURL + url.QueryEscape(keyword)
	if err := d.Navigate(ctx, target); err != nil {
		return nil, fmt.Errorf("navigate search url: %w", err)
	}
	if err := browser.WaitReady(ctx, d, cfg.Timing.PageReady(), cfg.Timing.PollInterval()); err != nil {
		return nil, err
	}
	if err := e.waitResultsSettled(ctx, d, cfg); err != nil {
		return nil, err
	}
	return e.extractPage(ctx, d, cfg, keyword)
}

// typeVerified types into the field and re-types once when it does not
// hold the text afterwards. Autocomplete overlays can swallow the first
// keystroke batch.
func typeVerified(ctx context.Context, d browser.PageDriver, selectors []string, text string) error {
	if err := d.Type(ctx, selectors, text); err != nil {
		return err
	}
	got, err := d.FieldValue(ctx, selectors)
	if err != nil || got == text {
		return nil
	}
	return d.Type(ctx, selectors, text)
}

// waitResultsSettled waits for the loading indicator to clear.
func (e *SearchExecutor) waitResultsSettled(ctx context.Context, d browser.PageDriver, cfg *config.Config) error {
	if len(cfg.Selectors.LoadingIndicator) == 0 {
		return browser.WaitReady(ctx, d, cfg.Timing.ResultsSettle(), cfg.Timing.PollInterval())
	}
	return browser.WaitFor(ctx, cfg.Timing.ResultsSettle(), cfg.Timing.PollInterval(),
		func(ctx context.Context) (bool, error) {
			loading, err := d.Exists(ctx, cfg.Selectors.LoadingIndicator)
			if err != nil {
				return false, err
			}
			return !loading, nil
		})
}

func (e *SearchExecutor) extractPage(ctx context.Context, d browser.PageDriver, cfg *config.Config, keyword string) ([]extract.Order, error) {
	if err := d.ScrollToBottom(ctx); err != nil {
		logging.SearchWarn("scroll failed, extracting visible part: %v", err)
	}
	html, err := d.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	orders, err := extract.Extract(html, keyword, cfg.Selectors.Order, e.now())
	if err != nil {
		return nil, err
	}
	logging.Search("extracted %d orders for %q", len(orders), keyword)
	return orders, nil
}
