package executor

import (
	"context"
	"errors"
	"fmt"

	"orderscout/internal/browser"
	"orderscout/internal/config"
	"orderscout/internal/logging"
	"orderscout/internal/registry"
)

// RespondExecutor places a response on one order under an authenticated
// session's cookies: open the order page, click the respond control,
// fill the response form and submit it.
type RespondExecutor struct {
	pool *browser.Pool
	reg  *registry.Registry
	conf func() *config.Config
}

// NewRespondExecutor wires the executor.
func NewRespondExecutor(pool *browser.Pool, reg *registry.Registry, conf func() *config.Config) *RespondExecutor {
	return &RespondExecutor{pool: pool, reg: reg, conf: conf}
}

// Respond borrows a session, installs the session's cookie jar and runs
// the respond protocol for orderID. The form disappearing after submit
// counts as confirmation even without an explicit success marker.
func (e *RespondExecutor) Respond(ctx context.Context, orderID, message, sessionID string) error {
	cfg := e.conf()

	jar, err := e.reg.Cookies(sessionID)
	if err != nil {
		if errors.Is(err, registry.ErrMissingCredentialState) {
			return fmt.Errorf("%w: %v", ErrNoCookiesForSession, err)
		}
		return err
	}

	session, err := e.pool.Acquire(ctx, cfg.Timing.AcquireTimeout())
	if err != nil {
		return fmt.Errorf("respond to %s: %w", orderID, err)
	}
	defer e.pool.Release(session)

	logging.Search("responding to order %s on session %s [registry %s]", orderID, session.ID, sessionID)
	d := session.Driver()

	if err := installCookies(ctx, d, cfg, jar); err != nil {
		return err
	}

	if err := d.Navigate(ctx, cfg.Endpoints.RespondBase()+orderID); err != nil {
		return fmt.Errorf("%w: open order page: %v", ErrAutomationFault, err)
	}
	if err := browser.WaitReady(ctx, d, cfg.Timing.PageReady(), cfg.Timing.PollInterval()); err != nil {
		return fmt.Errorf("%w: order page never ready", ErrRespondTimeout)
	}

	sel := cfg.Selectors
	if len(sel.RespondButton) == 0 {
		return fmt.Errorf("%w: no respond button selectors configured", ErrRespondUnavailable)
	}
	if err := e.waitPresent(ctx, d, cfg, sel.RespondButton); err != nil {
		return fmt.Errorf("%w: order %s has no respond control", ErrRespondUnavailable, orderID)
	}
	if err := d.ScrollToBottom(ctx); err != nil {
		logging.SearchWarn("scroll to respond control failed: %v", err)
	}
	if err := d.Click(ctx, sel.RespondButton); err != nil {
		return fmt.Errorf("%w: click respond: %v", ErrAutomationFault, err)
	}

	if err := e.waitPresent(ctx, d, cfg, sel.RespondInput); err != nil {
		return fmt.Errorf("%w: response form never appeared", ErrRespondTimeout)
	}
	if err := typeVerified(ctx, d, sel.RespondInput, message); err != nil {
		return fmt.Errorf("%w: fill response: %v", ErrAutomationFault, err)
	}
	if err := d.Click(ctx, sel.RespondSubmit); err != nil {
		return fmt.Errorf("%w: submit response: %v", ErrAutomationFault, err)
	}

	if err := e.awaitConfirmation(ctx, d, cfg); err != nil {
		return err
	}
	logging.Search("responded to order %s", orderID)
	return nil
}

func (e *RespondExecutor) waitPresent(ctx context.Context, d browser.PageDriver, cfg *config.Config, selectors []string) error {
	return browser.WaitFor(ctx, cfg.Timing.RespondWait(), cfg.Timing.PollInterval(),
		func(ctx context.Context) (bool, error) {
			return d.Exists(ctx, selectors)
		})
}

// awaitConfirmation accepts either an explicit success marker or the
// response form vanishing.
func (e *RespondExecutor) awaitConfirmation(ctx context.Context, d browser.PageDriver, cfg *config.Config) error {
	sel := cfg.Selectors
	err := browser.WaitFor(ctx, cfg.Timing.RespondWait(), cfg.Timing.PollInterval(),
		func(ctx context.Context) (bool, error) {
			if len(sel.RespondSuccess) > 0 {
				if ok, err := d.Exists(ctx, sel.RespondSuccess); err == nil && ok {
					return true, nil
				}
			}
			formShown, err := d.Exists(ctx, sel.RespondInput)
			if err != nil {
				return false, err
			}
			return !formShown, nil
		})
	if err != nil {
		return fmt.Errorf("%w: response never confirmed", ErrRespondTimeout)
	}
	return nil
}
