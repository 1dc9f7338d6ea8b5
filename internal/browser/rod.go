package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"orderscout/internal/config"
	"orderscout/internal/logging"
	"orderscout/internal/registry"
)

// elementTimeout bounds a single selector lookup. Fallback lists probe
// several selectors, so each probe must fail fast.
const elementTimeout = 2 * time.Second

// rodDriver drives one Chrome instance through rod.
type rodDriver struct {
	browser  *rod.Browser
	page     *rod.Page
	cleanup  func()
	navLimit time.Duration
}

// NewRodFactory returns a Factory launching one Chrome per session, the
// way the pool expects: sessions are isolated OS processes, so a crashed
// one never takes a sibling down.
func NewRodFactory(cfg config.BrowserConfig) Factory {
	return func(ctx context.Context) (*Session, error) {
		l := launcher.New().
			Headless(cfg.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-notifications").
			Set("no-sandbox").
			Set("disable-dev-shm-usage").
			Set("disable-gpu").
			Set("disable-extensions")
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}

		b := rod.New().ControlURL(controlURL).Context(ctx)
		if err := b.Connect(); err != nil {
			l.Cleanup()
			return nil, fmt.Errorf("connect to chrome: %w", err)
		}

		page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			_ = b.Close()
			l.Cleanup()
			return nil, fmt.Errorf("create page: %w", err)
		}

		w, h := cfg.Viewport()
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             w,
			Height:            h,
			DeviceScaleFactor: 1.0,
		}).Call(page); err != nil {
			logging.PoolWarn("set viewport failed: %v", err)
		}

		logging.Pool("launched chrome session (headless=%v)", cfg.Headless)
		return NewSession(&rodDriver{
			browser:  b,
			page:     page,
			cleanup:  l.Cleanup,
			navLimit: cfg.NavTimeout(),
		}), nil
	}
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx).Timeout(d.navLimit)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return page.WaitLoad()
}

func (d *rodDriver) Reload(ctx context.Context) error {
	page := d.page.Context(ctx).Timeout(d.navLimit)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return page.WaitLoad()
}

func (d *rodDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *rodDriver) HTML(ctx context.Context) (string, error) {
	return d.page.Context(ctx).HTML()
}

func (d *rodDriver) Ready(ctx context.Context) (bool, error) {
	res, err := d.page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return false, err
	}
	return res.Value.Str() == "complete", nil
}

func (d *rodDriver) Exists(ctx context.Context, selectors []string) (bool, error) {
	el, err := d.element(ctx, selectors)
	if err != nil {
		return false, nil
	}
	return el != nil, nil
}

func (d *rodDriver) Type(ctx context.Context, selectors []string, text string) error {
	el, err := d.element(ctx, selectors)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	return el.Input(text)
}

func (d *rodDriver) FieldValue(ctx context.Context, selectors []string) (string, error) {
	el, err := d.element(ctx, selectors)
	if err != nil {
		return "", err
	}
	v, err := el.Property("value")
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

func (d *rodDriver) Submit(ctx context.Context, selectors []string) error {
	el, err := d.element(ctx, selectors)
	if err != nil {
		return err
	}
	return el.Type(input.Enter)
}

func (d *rodDriver) Click(ctx context.Context, selectors []string) error {
	el, err := d.element(ctx, selectors)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *rodDriver) SetCookies(ctx context.Context, cookies []registry.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: proto.TimeSinceEpoch(c.Expires),
		})
	}
	return d.page.Context(ctx).SetCookies(params)
}

func (d *rodDriver) Cookies(ctx context.Context) ([]registry.Cookie, error) {
	raw, err := d.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, err
	}
	cookies := make([]registry.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, registry.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: float64(c.Expires),
		})
	}
	return cookies, nil
}

func (d *rodDriver) ClearBrowsingState(ctx context.Context) error {
	page := d.page.Context(ctx)
	if err := (proto.NetworkClearBrowserCookies{}).Call(page); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	url, err := d.CurrentURL(ctx)
	if err == nil && !strings.HasPrefix(url, "about:") && !strings.HasPrefix(url, "data:") {
		if _, err := page.Eval(`() => window.localStorage.clear()`); err != nil {
			return fmt.Errorf("clear local storage: %w", err)
		}
	}
	return nil
}

func (d *rodDriver) ScrollToBottom(ctx context.Context) error {
	page := d.page.Context(ctx)
	// Two passes: lazy-loaded result rows extend the page after the first
	// scroll.
	for i := 0; i < 2; i++ {
		if _, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			return err
		}
		_ = page.WaitIdle(2 * time.Second)
	}
	return nil
}

func (d *rodDriver) Healthy(ctx context.Context) bool {
	_, err := d.page.Context(ctx).Info()
	return err == nil
}

func (d *rodDriver) Close() error {
	err := d.browser.Close()
	if d.cleanup != nil {
		d.cleanup()
	}
	return err
}

// element probes the fallback list and returns the first match.
func (d *rodDriver) element(ctx context.Context, selectors []string) (*rod.Element, error) {
	page := d.page.Context(ctx)
	for _, sel := range selectors {
		el, err := page.Timeout(elementTimeout).Element(strings.TrimSpace(sel))
		if err == nil && el != nil {
			return el, nil
		}
	}
	return nil, fmt.Errorf("no element matched %v", selectors)
}
