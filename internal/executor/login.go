package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"orderscout/internal/browser"
	"orderscout/internal/config"
	"orderscout/internal/logging"
	"orderscout/internal/registry"
)

// LoginExecutor authenticates an identity against the marketplace and
// snapshots the resulting cookies into the session registry.
type LoginExecutor struct {
	pool *browser.Pool
	reg  *registry.Registry
	conf func() *config.Config
}

// NewLoginExecutor wires the executor. conf is called per operation so
// hot-reloaded selectors take effect immediately.
func NewLoginExecutor(pool *browser.Pool, reg *registry.Registry, conf func() *config.Config) *LoginExecutor {
	return &LoginExecutor{pool: pool, reg: reg, conf: conf}
}

// Authenticate logs identity in and returns its session id. Reuses an
// existing live session record when one exists. An automation fault is
// retried once before surfacing.
func (e *LoginExecutor) Authenticate(ctx context.Context, identity, secret string) (string, error) {
	sessionID, err := e.authenticate(ctx, identity, secret)
	if err != nil && errors.Is(err, ErrAutomationFault) {
		logging.LoginWarn("login fault for %s, retrying once: %v", identity, err)
		sessionID, err = e.authenticate(ctx, identity, secret)
	}
	return sessionID, err
}

func (e *LoginExecutor) authenticate(ctx context.Context, identity, secret string) (string, error) {
	cfg := e.conf()

	session, err := e.pool.Acquire(ctx, cfg.Timing.AcquireTimeout())
	if err != nil {
		return "", fmt.Errorf("login for %s: %w", identity, err)
	}
	defer e.pool.Release(session)

	logging.Login("authenticating %s on session %s", identity, session.ID)
	d := session.Driver()
	sel := cfg.Selectors

	if err := d.Navigate(ctx, cfg.Endpoints.LoginURL); err != nil {
		return "", fmt.Errorf("%w: open login page: %v", ErrAutomationFault, err)
	}
	if err := browser.WaitReady(ctx, d, cfg.Timing.PageReady(), cfg.Timing.PollInterval()); err != nil {
		return "", fmt.Errorf("%w: login page never ready", ErrLoginTimeout)
	}

	if err := d.Type(ctx, sel.LoginInput, identity); err != nil {
		return "", fmt.Errorf("%w: fill login: %v", ErrAutomationFault, err)
	}
	if err := d.Type(ctx, sel.PasswordInput, secret); err != nil {
		return "", fmt.Errorf("%w: fill password: %v", ErrAutomationFault, err)
	}
	if err := d.Click(ctx, sel.SubmitButton); err != nil {
		return "", fmt.Errorf("%w: submit login form: %v", ErrAutomationFault, err)
	}

	if err := e.awaitOutcome(ctx, d, cfg); err != nil {
		return "", err
	}

	jar, err := d.Cookies(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: snapshot cookies: %v", ErrAutomationFault, err)
	}
	if len(jar) == 0 {
		return "", fmt.Errorf("%w: login succeeded but no cookies captured", ErrAutomationFault)
	}

	sessionID := e.reg.GetOrCreate(identity)
	if err := e.reg.SaveCookies(sessionID, jar); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAutomationFault, err)
	}
	logging.Login("login ok for %s: session %s, %d cookies", identity, sessionID, len(jar))
	return sessionID, nil
}

// awaitOutcome polls for one of: success marker, failure marker, or the
// URL pattern of a logged-in page. Bounded by timing.login_wait.
func (e *LoginExecutor) awaitOutcome(ctx context.Context, d browser.PageDriver, cfg *config.Config) error {
	sel := cfg.Selectors
	deadline := time.Now().Add(cfg.Timing.LoginWait())
	interval := cfg.Timing.PollInterval()

	for {
		if url, err := d.CurrentURL(ctx); err == nil &&
			cfg.Endpoints.AuthURLMark != "" && strings.Contains(url, cfg.Endpoints.AuthURLMark) {
			return nil
		}
		if ok, _ := d.Exists(ctx, sel.AuthSuccess); ok {
			return nil
		}
		if ok, _ := d.Exists(ctx, sel.AuthFailure); ok {
			return ErrInvalidCredentials
		}

		if time.Now().After(deadline) {
			return ErrLoginTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
