// Package config loads orderscout configuration. Page selectors, timing
// bounds and endpoint URLs all live here: the automation core never
// hard-codes anything about the marketplace's markup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"orderscout/internal/extract"
)

// Config holds all orderscout configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Endpoints  EndpointsConfig  `yaml:"endpoints"`
	Selectors  SelectorsConfig  `yaml:"selectors"`
	Timing     TimingConfig     `yaml:"timing"`
	Cache      CacheConfig      `yaml:"cache"`
	Queue      QueueConfig      `yaml:"queue"`
	AutoSearch AutoSearchConfig `yaml:"autosearch"`
	Store      StoreConfig      `yaml:"store"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Logging    LoggingConfig    `yaml:"logging"`
	Accounts   []AccountConfig  `yaml:"accounts"`
}

// AccountConfig declares one served identity: the chat it reports to,
// its marketplace credentials and its recurring-search setup.
type AccountConfig struct {
	Identity    string   `yaml:"identity"` // chat id
	Login       string   `yaml:"login"`
	Secret      string   `yaml:"secret"`
	Keywords    []string `yaml:"keywords"`
	IntervalMin int      `yaml:"interval_min"` // 0 = autosearch off
}

func (c AccountConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMin) * time.Minute
}

// BrowserConfig configures the automation sessions and their pool.
type BrowserConfig struct {
	Bin            string `yaml:"bin"`      // chrome binary, empty = rod default
	Headless       bool   `yaml:"headless"`
	PoolSize       int    `yaml:"pool_size"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	NavTimeoutMs   int    `yaml:"nav_timeout_ms"`
}

func (c BrowserConfig) Size() int {
	if c.PoolSize <= 0 {
		return 3
	}
	return c.PoolSize
}

func (c BrowserConfig) NavTimeout() time.Duration {
	if c.NavTimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.NavTimeoutMs) * time.Millisecond
}

func (c BrowserConfig) Viewport() (int, int) {
	w, h := c.ViewportWidth, c.ViewportHeight
	if w <= 0 {
		w = 1920
	}
	if h <= 0 {
		h = 1080
	}
	return w, h
}

// EndpointsConfig holds the marketplace URLs the executors navigate to.
type EndpointsConfig struct {
	LoginURL    string `yaml:"login_url"`
	OrdersURL   string `yaml:"orders_url"`    // stable page for cookie install + UI search
	SearchURL   string `yaml:"search_url"`    // prefix for the fallback parameterized search
	OrderURL    string `yaml:"order_url"`     // prefix for a single order's page
	RespondURL  string `yaml:"respond_url"`   // prefix for the respond-capable order page
	AuthURLMark string `yaml:"auth_url_mark"` // substring of a logged-in URL
}

// RespondBase is the order-page prefix used when placing a response.
// The backoffice serves responses from a different URL than the public
// order card; falls back to order_url when not set separately.
func (c EndpointsConfig) RespondBase() string {
	if c.RespondURL != "" {
		return c.RespondURL
	}
	return c.OrderURL
}

// SelectorsConfig groups every CSS selector the executors use. Each field
// is an ordered fallback list evaluated first-match-wins.
type SelectorsConfig struct {
	LoginInput       []string `yaml:"login_input"`
	PasswordInput    []string `yaml:"password_input"`
	SubmitButton     []string `yaml:"submit_button"`
	AuthSuccess      []string `yaml:"auth_success"`
	AuthFailure      []string `yaml:"auth_failure"`
	SearchInput      []string `yaml:"search_input"`
	SearchButton     []string `yaml:"search_button"`
	LoadingIndicator []string `yaml:"loading_indicator"`
	RespondButton    []string `yaml:"respond_button"`
	RespondInput     []string `yaml:"respond_input"`
	RespondSubmit    []string `yaml:"respond_submit"`
	RespondSuccess   []string `yaml:"respond_success"`

	Order extract.Selectors `yaml:"order"`
}

// TimingConfig bounds every wait in the automation protocols. These are
// condition-poll timeouts, not sleeps.
type TimingConfig struct {
	AcquireTimeoutMs  int `yaml:"acquire_timeout_ms"`
	LoginWaitMs       int `yaml:"login_wait_ms"`
	PageReadyMs       int `yaml:"page_ready_ms"`
	CookiesAppliedMs  int `yaml:"cookies_applied_ms"`
	ResultsSettleMs   int `yaml:"results_settle_ms"`
	RespondWaitMs     int `yaml:"respond_wait_ms"`
	PollIntervalMs    int `yaml:"poll_interval_ms"`
	MinCookiesForAuth int `yaml:"min_cookies_for_auth"`
}

func ms(v, fallbackMs int) time.Duration {
	if v <= 0 {
		v = fallbackMs
	}
	return time.Duration(v) * time.Millisecond
}

func (c TimingConfig) AcquireTimeout() time.Duration { return ms(c.AcquireTimeoutMs, 5000) }
func (c TimingConfig) LoginWait() time.Duration      { return ms(c.LoginWaitMs, 60000) }
func (c TimingConfig) PageReady() time.Duration      { return ms(c.PageReadyMs, 20000) }
func (c TimingConfig) CookiesApplied() time.Duration { return ms(c.CookiesAppliedMs, 10000) }
func (c TimingConfig) ResultsSettle() time.Duration  { return ms(c.ResultsSettleMs, 10000) }
func (c TimingConfig) RespondWait() time.Duration    { return ms(c.RespondWaitMs, 20000) }
func (c TimingConfig) PollInterval() time.Duration   { return ms(c.PollIntervalMs, 500) }

func (c TimingConfig) MinCookies() int {
	if c.MinCookiesForAuth <= 0 {
		return 5
	}
	return c.MinCookiesForAuth
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	TTLMs   int `yaml:"ttl_ms"`
	SweepMs int `yaml:"sweep_ms"`
}

func (c CacheConfig) TTL() time.Duration   { return ms(c.TTLMs, 5*60*1000) }
func (c CacheConfig) Sweep() time.Duration { return ms(c.SweepMs, 60*1000) }

// QueueConfig configures the admission queue.
type QueueConfig struct {
	Workers    int `yaml:"workers"`
	CooldownMs int `yaml:"cooldown_ms"`
}

func (c QueueConfig) WorkerCount(poolSize int) int {
	n := c.Workers
	if n <= 0 {
		n = poolSize
	}
	if n > poolSize {
		n = poolSize // never oversubscribe the pool
	}
	return n
}

func (c QueueConfig) Cooldown() time.Duration { return ms(c.CooldownMs, 2*60*1000) }

// AutoSearchConfig bounds recurring search intervals.
type AutoSearchConfig struct {
	MinIntervalMin int `yaml:"min_interval_min"`
	MaxIntervalMin int `yaml:"max_interval_min"`
}

func (c AutoSearchConfig) MinInterval() time.Duration {
	if c.MinIntervalMin <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.MinIntervalMin) * time.Minute
}

func (c AutoSearchConfig) MaxInterval() time.Duration {
	if c.MaxIntervalMin <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.MaxIntervalMin) * time.Minute
}

// StoreConfig selects and configures the seen-set store.
type StoreConfig struct {
	Driver     string `yaml:"driver"` // sqlite (default) or redis
	SQLitePath string `yaml:"sqlite_path"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	TrialDays  int    `yaml:"trial_days"`
}

func (c StoreConfig) Trial() int {
	if c.TrialDays <= 0 {
		return 3
	}
	return c.TrialDays
}

// TelegramConfig configures the notification sink.
type TelegramConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"` // override for tests
}

// LoggingConfig mirrors logging.Settings in YAML form.
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Dir        string          `yaml:"dir"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

func (c LoggingConfig) LogDir() string {
	if c.Dir == "" {
		return "logs"
	}
	return c.Dir
}

// Load reads the YAML config at path and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets and deploy-specific values come from the
// environment instead of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("ORDERSCOUT_TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("ORDERSCOUT_REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv("ORDERSCOUT_SQLITE_PATH"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := os.Getenv("ORDERSCOUT_CHROME_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if os.Getenv("ORDERSCOUT_HEADLESS") == "1" {
		c.Browser.Headless = true
	}
}

func (c *Config) validate() error {
	if c.Endpoints.LoginURL == "" {
		return fmt.Errorf("config: endpoints.login_url is required")
	}
	if c.Endpoints.OrdersURL == "" {
		return fmt.Errorf("config: endpoints.orders_url is required")
	}
	if c.Endpoints.SearchURL == "" {
		return fmt.Errorf("config: endpoints.search_url is required")
	}
	if len(c.Selectors.Order.Cards) == 0 {
		return fmt.Errorf("config: selectors.order.cards must list at least one selector")
	}
	for i, acc := range c.Accounts {
		if acc.Identity == "" || acc.Login == "" {
			return fmt.Errorf("config: accounts[%d] needs identity and login", i)
		}
	}
	return nil
}

// Account returns the account entry owning identity.
func (c *Config) Account(identity string) (AccountConfig, bool) {
	for _, acc := range c.Accounts {
		if acc.Identity == identity {
			return acc, true
		}
	}
	return AccountConfig{}, false
}
