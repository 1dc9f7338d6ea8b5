package executor

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"orderscout/internal/browser"
	"orderscout/internal/config"
	"orderscout/internal/extract"
	"orderscout/internal/registry"
)

// fakeDriver is a scriptable PageDriver. Hooks fire under the lock, so
// they must only touch the passed state.
type fakeDriver struct {
	mu        sync.Mutex
	url       string
	html      string
	ready     bool
	present   map[string]bool
	cookies   []registry.Cookie
	typed     map[string]string
	navigated []string
	reloads   int
	cleared   int
	typeCalls int
	dropTypes int

	typeErr  error
	onClick  func(d *fakeDriver, selector string)
	onSubmit func(d *fakeDriver, selector string)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		ready:   true,
		present: make(map[string]bool),
		typed:   make(map[string]string),
	}
}

func (d *fakeDriver) Navigate(ctx context.Context, u string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = u
	d.navigated = append(d.navigated, u)
	return nil
}

func (d *fakeDriver) Reload(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reloads++
	return nil
}

func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *fakeDriver) HTML(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.html, nil
}

func (d *fakeDriver) Ready(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready, nil
}

func (d *fakeDriver) Exists(ctx context.Context, selectors []string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range selectors {
		if d.present[s] {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDriver) Type(ctx context.Context, selectors []string, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.typeErr != nil {
		return d.typeErr
	}
	d.typeCalls++
	if d.dropTypes > 0 {
		d.dropTypes--
		d.typed[selectors[0]] = ""
		return nil
	}
	d.typed[selectors[0]] = text
	return nil
}

func (d *fakeDriver) FieldValue(ctx context.Context, selectors []string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typed[selectors[0]], nil
}

func (d *fakeDriver) Submit(ctx context.Context, selectors []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onSubmit != nil {
		d.onSubmit(d, selectors[0])
	}
	return nil
}

func (d *fakeDriver) Click(ctx context.Context, selectors []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onClick != nil {
		d.onClick(d, selectors[0])
	}
	return nil
}

func (d *fakeDriver) SetCookies(ctx context.Context, cookies []registry.Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies = append([]registry.Cookie(nil), cookies...)
	return nil
}

func (d *fakeDriver) Cookies(ctx context.Context) ([]registry.Cookie, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cookies, nil
}

func (d *fakeDriver) ClearBrowsingState(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleared++
	d.cookies = nil
	return nil
}

func (d *fakeDriver) ScrollToBottom(ctx context.Context) error { return nil }

func (d *fakeDriver) Healthy(ctx context.Context) bool { return true }

func (d *fakeDriver) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Endpoints: config.EndpointsConfig{
			LoginURL:    "https://m.example.com/login",
			OrdersURL:   "https://m.example.com/orders",
			SearchURL:   "https://m.example.com/search?q=",
			OrderURL:    "https://m.example.com/order/",
			RespondURL:  "https://m.example.com/respond/",
			AuthURLMark: "/profile",
		},
		Selectors: config.SelectorsConfig{
			LoginInput:       []string{"#login"},
			PasswordInput:    []string{"#password"},
			SubmitButton:     []string{"#submit"},
			AuthSuccess:      []string{".avatar"},
			AuthFailure:      []string{".login-error"},
			SearchInput:      []string{"#search"},
			SearchButton:     []string{".search-toggle"},
			LoadingIndicator: []string{".spinner"},
			RespondButton:    []string{".respond-btn"},
			RespondInput:     []string{".respond-text"},
			RespondSubmit:    []string{".respond-submit"},
			RespondSuccess:   []string{".respond-success"},
			Order: extract.Selectors{
				Cards: []string{".order-card"},
				Title: []string{".order-title"},
				Price: []string{".order-price"},
				Time:  []string{".order-time"},
			},
		},
		Timing: config.TimingConfig{
			AcquireTimeoutMs:  500,
			LoginWaitMs:       200,
			PageReadyMs:       100,
			CookiesAppliedMs:  100,
			ResultsSettleMs:   100,
			RespondWaitMs:     100,
			PollIntervalMs:    5,
			MinCookiesForAuth: 2,
		},
	}
}

// testPool builds a single-session pool around one fake driver.
func testPool(t *testing.T, d *fakeDriver) *browser.Pool {
	t.Helper()
	pool, err := browser.NewPool(context.Background(),
		func(ctx context.Context) (*browser.Session, error) {
			return browser.NewSession(d), nil
		}, 1)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func authJar(n int) []registry.Cookie {
	jar := make([]registry.Cookie, n)
	for i := range jar {
		jar[i] = registry.Cookie{Name: "c" + string(rune('a'+i)), Value: "v", Domain: ".example.com", Path: "/"}
	}
	return jar
}

func TestAuthenticateSuccess(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	d.onClick = func(d *fakeDriver, selector string) {
		if selector == "#submit" {
			d.url = "https://m.example.com/profile/orders"
			d.cookies = authJar(3)
		}
	}

	pool := testPool(t, d)
	reg := registry.New()
	login := NewLoginExecutor(pool, reg, func() *config.Config { return cfg })

	sessionID, err := login.Authenticate(context.Background(), "79001234567", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if got := d.typed["#login"]; got != "79001234567" {
		t.Errorf("login field = %q", got)
	}
	if got := d.typed["#password"]; got != "secret" {
		t.Errorf("password field = %q", got)
	}
	jar, err := reg.Cookies(sessionID)
	if err != nil {
		t.Fatalf("registry cookies: %v", err)
	}
	if len(jar) != 3 {
		t.Errorf("saved %d cookies, want 3", len(jar))
	}
	if pool.Available() != 1 {
		t.Errorf("session not returned to pool: available=%d", pool.Available())
	}
}

func TestAuthenticateSuccessViaMarker(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoints.AuthURLMark = "" // force the marker path
	d := newFakeDriver()
	d.onClick = func(d *fakeDriver, selector string) {
		if selector == "#submit" {
			d.present[".avatar"] = true
			d.cookies = authJar(2)
		}
	}

	pool := testPool(t, d)
	reg := registry.New()
	login := NewLoginExecutor(pool, reg, func() *config.Config { return cfg })

	if _, err := login.Authenticate(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	d.onClick = func(d *fakeDriver, selector string) {
		if selector == "#submit" {
			d.present[".login-error"] = true
		}
	}

	pool := testPool(t, d)
	login := NewLoginExecutor(pool, registry.New(), func() *config.Config { return cfg })

	_, err := login.Authenticate(context.Background(), "79001234567", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if pool.Available() != 1 {
		t.Errorf("failed login leaked the session: available=%d", pool.Available())
	}
}

func TestAuthenticateTimeoutReleasesSession(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver() // nothing ever reacts to the submit

	pool := testPool(t, d)
	login := NewLoginExecutor(pool, registry.New(), func() *config.Config { return cfg })

	_, err := login.Authenticate(context.Background(), "79001234567", "secret")
	if !errors.Is(err, ErrLoginTimeout) {
		t.Fatalf("err = %v, want ErrLoginTimeout", err)
	}
	if pool.Available() != 1 {
		t.Errorf("timed-out login leaked the session: available=%d", pool.Available())
	}
}

const searchPage = `
<div class="order-card" id="order-1">
  <span class="order-title">Нужен юрист</span>
  <span class="order-price">5000</span>
  <span class="order-time">только что</span>
</div>
<div class="order-card" id="order-2">
  <span class="order-title">Юрист по трудовым спорам</span>
  <span class="order-time">2 часа назад</span>
</div>`

func preparedSearch(t *testing.T, cfg *config.Config, d *fakeDriver) (*SearchExecutor, string, *browser.Pool) {
	t.Helper()
	pool := testPool(t, d)
	reg := registry.New()
	sessionID := reg.GetOrCreate("79001234567")
	if err := reg.SaveCookies(sessionID, authJar(3)); err != nil {
		t.Fatalf("SaveCookies: %v", err)
	}
	return NewSearchExecutor(pool, reg, func() *config.Config { return cfg }), sessionID, pool
}

func TestSearchViaUI(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	d.onSubmit = func(d *fakeDriver, selector string) {
		if selector == "#search" {
			d.html = searchPage
		}
	}

	search, sessionID, pool := preparedSearch(t, cfg, d)

	orders, err := search.Search(context.Background(), "юрист", sessionID)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}
	if orders[0].ID != "order-1" || orders[1].ID != "order-2" {
		t.Errorf("unexpected ranking: %s, %s", orders[0].ID, orders[1].ID)
	}
	if got := d.typed["#search"]; got != "юрист" {
		t.Errorf("search field = %q", got)
	}

	// Cookie install protocol: stable page first, wipe, install, reload.
	d.mu.Lock()
	if len(d.navigated) == 0 || d.navigated[0] != cfg.Endpoints.OrdersURL {
		t.Errorf("first navigation = %v, want orders page", d.navigated)
	}
	if d.cleared != 1 {
		t.Errorf("browsing state cleared %d times, want 1", d.cleared)
	}
	if d.reloads != 1 {
		t.Errorf("reloads = %d, want 1", d.reloads)
	}
	if len(d.cookies) != 3 {
		t.Errorf("installed %d cookies, want 3", len(d.cookies))
	}
	d.mu.Unlock()

	if pool.Available() != 1 {
		t.Errorf("session not returned: available=%d", pool.Available())
	}
}

func TestSearchFallsBackToURL(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	d.typeErr = errors.New("input detached") // breaks the UI strategy
	d.html = searchPage

	search, sessionID, _ := preparedSearch(t, cfg, d)

	orders, err := search.Search(context.Background(), "юрист", sessionID)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}

	want := cfg.Endpoints.SearchURL + url.QueryEscape("юрист")
	d.mu.Lock()
	defer d.mu.Unlock()
	found := false
	for _, u := range d.navigated {
		if u == want {
			found = true
		}
	}
	if !found {
		t.Errorf("fallback never navigated to %s (saw %v)", want, d.navigated)
	}
}

func TestSearchWithoutCookies(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	pool := testPool(t, d)
	reg := registry.New()
	sessionID := reg.GetOrCreate("79001234567") // no cookies saved

	search := NewSearchExecutor(pool, reg, func() *config.Config { return cfg })

	_, err := search.Search(context.Background(), "юрист", sessionID)
	if !errors.Is(err, ErrNoCookiesForSession) {
		t.Fatalf("err = %v, want ErrNoCookiesForSession", err)
	}
	if pool.Available() != 1 {
		t.Errorf("cookieless search touched the pool: available=%d", pool.Available())
	}
}

func TestSearchTimeoutWhenResultsNeverSettle(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	d.present[".spinner"] = true // loading forever

	search, sessionID, _ := preparedSearch(t, cfg, d)

	_, err := search.Search(context.Background(), "юрист", sessionID)
	if !errors.Is(err, ErrSearchTimeout) {
		t.Fatalf("err = %v, want ErrSearchTimeout", err)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrLoginTimeout, true},
		{ErrSearchTimeout, true},
		{ErrRespondTimeout, true},
		{ErrAutomationFault, true},
		{ErrInvalidCredentials, false},
		{ErrNoCookiesForSession, false},
		{ErrRespondUnavailable, false},
		{errors.New("misc"), false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestAuthenticateRespectsContextCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Timing.LoginWaitMs = 60_000
	d := newFakeDriver()

	pool := testPool(t, d)
	login := NewLoginExecutor(pool, registry.New(), func() *config.Config { return cfg })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := login.Authenticate(ctx, "79001234567", "secret")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
}

// The field is re-typed once when an overlay swallows the first input.
func TestSearchRetypesDroppedKeyword(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	d.dropTypes = 1
	d.onSubmit = func(d *fakeDriver, selector string) {
		if selector == "#search" {
			d.html = searchPage
		}
	}

	search, sessionID, _ := preparedSearch(t, cfg, d)

	orders, err := search.Search(context.Background(), "юрист", sessionID)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.typed["#search"] != "юрист" {
		t.Errorf("search field = %q after retype", d.typed["#search"])
	}
	if d.typeCalls != 2 {
		t.Errorf("type calls = %d, want 2 (initial + retype)", d.typeCalls)
	}
}

func preparedRespond(t *testing.T, cfg *config.Config, d *fakeDriver) (*RespondExecutor, string, *browser.Pool) {
	t.Helper()
	pool := testPool(t, d)
	reg := registry.New()
	sessionID := reg.GetOrCreate("79001234567")
	if err := reg.SaveCookies(sessionID, authJar(3)); err != nil {
		t.Fatalf("SaveCookies: %v", err)
	}
	return NewRespondExecutor(pool, reg, func() *config.Config { return cfg }), sessionID, pool
}

func TestRespondSuccess(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	d.present[".respond-btn"] = true
	d.onClick = func(d *fakeDriver, selector string) {
		switch selector {
		case ".respond-btn":
			d.present[".respond-text"] = true
		case ".respond-submit":
			d.present[".respond-success"] = true
		}
	}

	respond, sessionID, pool := preparedRespond(t, cfg, d)

	if err := respond.Respond(context.Background(), "order-9", "Хочу выполнить заказ!", sessionID); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	d.mu.Lock()
	want := cfg.Endpoints.RespondBase() + "order-9"
	found := false
	for _, u := range d.navigated {
		if u == want {
			found = true
		}
	}
	if !found {
		t.Errorf("never navigated to %s (saw %v)", want, d.navigated)
	}
	if got := d.typed[".respond-text"]; got != "Хочу выполнить заказ!" {
		t.Errorf("response text = %q", got)
	}
	d.mu.Unlock()

	if pool.Available() != 1 {
		t.Errorf("session not returned: available=%d", pool.Available())
	}
}

// The form vanishing after submit counts as confirmation even without a
// success marker.
func TestRespondConfirmedByFormVanishing(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	d.present[".respond-btn"] = true
	d.onClick = func(d *fakeDriver, selector string) {
		switch selector {
		case ".respond-btn":
			d.present[".respond-text"] = true
		case ".respond-submit":
			d.present[".respond-text"] = false
		}
	}

	respond, sessionID, _ := preparedRespond(t, cfg, d)

	if err := respond.Respond(context.Background(), "order-9", "Хочу выполнить заказ!", sessionID); err != nil {
		t.Fatalf("Respond: %v", err)
	}
}

func TestRespondUnavailableWhenButtonMissing(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver() // no respond button on the page

	respond, sessionID, pool := preparedRespond(t, cfg, d)

	err := respond.Respond(context.Background(), "order-9", "Хочу выполнить заказ!", sessionID)
	if !errors.Is(err, ErrRespondUnavailable) {
		t.Fatalf("err = %v, want ErrRespondUnavailable", err)
	}
	if pool.Available() != 1 {
		t.Errorf("failed respond leaked the session: available=%d", pool.Available())
	}
}

func TestRespondTimeoutWhenNeverConfirmed(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	d.present[".respond-btn"] = true
	d.onClick = func(d *fakeDriver, selector string) {
		if selector == ".respond-btn" {
			d.present[".respond-text"] = true
		}
		// submit leaves the form up and shows no success marker
	}

	respond, sessionID, _ := preparedRespond(t, cfg, d)

	err := respond.Respond(context.Background(), "order-9", "Хочу выполнить заказ!", sessionID)
	if !errors.Is(err, ErrRespondTimeout) {
		t.Fatalf("err = %v, want ErrRespondTimeout", err)
	}
}

func TestRespondWithoutCookies(t *testing.T) {
	cfg := testConfig()
	d := newFakeDriver()
	pool := testPool(t, d)
	reg := registry.New()
	sessionID := reg.GetOrCreate("79001234567") // no cookies saved

	respond := NewRespondExecutor(pool, reg, func() *config.Config { return cfg })

	err := respond.Respond(context.Background(), "order-9", "Хочу выполнить заказ!", sessionID)
	if !errors.Is(err, ErrNoCookiesForSession) {
		t.Fatalf("err = %v, want ErrNoCookiesForSession", err)
	}
	if pool.Available() != 1 {
		t.Errorf("cookieless respond touched the pool: available=%d", pool.Available())
	}
}
