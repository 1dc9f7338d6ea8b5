package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderscout/internal/autosearch"
	"orderscout/internal/browser"
	"orderscout/internal/cache"
	"orderscout/internal/config"
	"orderscout/internal/executor"
	"orderscout/internal/notify"
	"orderscout/internal/orchestrator"
	"orderscout/internal/ports"
	"orderscout/internal/queue"
	"orderscout/internal/registry"
	"orderscout/internal/store"
	"orderscout/internal/subscription"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the full search engine until interrupted",
	Long: `Starts the browser pool, task queue and recurring searches for every
account in the config, then blocks until SIGINT or SIGTERM. Selector and
timing sections of the config are hot-reloaded on file change.`,
	RunE: runServe,
}

// configCredentials resolves marketplace credentials from the accounts
// section, tracking hot reloads.
type configCredentials struct {
	conf func() *config.Config
}

func (p configCredentials) Credentials(ctx context.Context, identity string) (ports.Credentials, error) {
	acc, ok := p.conf().Account(identity)
	if !ok {
		return ports.Credentials{}, fmt.Errorf("no account configured for identity %s", identity)
	}
	return ports.Credentials{Login: acc.Login, Secret: acc.Secret}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := config.Watch(configPath, cfg, func(c *config.Config) {
		logger.Info("config reloaded", zap.String("path", configPath))
	})
	if err != nil {
		return err
	}
	defer watcher.Close()
	conf := watcher.Current

	logger.Info("starting browser pool", zap.Int("size", cfg.Browser.Size()), zap.Bool("headless", cfg.Browser.Headless))
	pool, err := browser.NewPool(ctx, browser.NewRodFactory(cfg.Browser), cfg.Browser.Size())
	if err != nil {
		return fmt.Errorf("start browser pool: %w", err)
	}
	defer pool.Close()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	subBackend, closeSub, err := subscriptionBackend(st)
	if err != nil {
		return err
	}
	if closeSub != nil {
		defer closeSub()
	}
	subs := subscription.New(subBackend, cfg.Store.Trial())

	reg := registry.New()
	resultCache := cache.New(cfg.Cache.TTL(), cfg.Cache.Sweep())
	defer resultCache.Close()

	orch := orchestrator.New(
		resultCache,
		reg,
		executor.NewLoginExecutor(pool, reg, conf),
		executor.NewSearchExecutor(pool, reg, conf),
		executor.NewRespondExecutor(pool, reg, conf),
		configCredentials{conf: conf},
	)

	sink := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.BaseURL, cfg.Endpoints.OrderURL)

	q := queue.New(orch, subs, st, sink, cfg.Queue.Cooldown())
	q.Start(ctx, cfg.Queue.WorkerCount(cfg.Browser.Size()))
	defer q.Close()

	sched := autosearch.New(q, subs, sink)
	defer sched.Close()

	for _, acc := range cfg.Accounts {
		if acc.IntervalMin <= 0 {
			continue
		}
		keywords := acc.Keywords
		if len(keywords) == 0 {
			keywords, err = st.Keywords(ctx, acc.Identity)
			if err != nil {
				logger.Warn("loading stored keywords", zap.String("identity", acc.Identity), zap.Error(err))
			}
		}
		if len(keywords) == 0 {
			logger.Warn("account has no keywords, autosearch skipped", zap.String("identity", acc.Identity))
			continue
		}
		interval := sched.Enable(ctx, acc.Identity, keywords, acc.Interval())
		logger.Info("autosearch enabled",
			zap.String("identity", acc.Identity),
			zap.Duration("interval", interval),
			zap.Int("keywords", len(keywords)))
	}

	logger.Info("orderscout serving")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// subscriptionBackend returns the SQLite side that holds subscription
// rows. With the redis store a dedicated SQLite file is opened just for
// subscriptions.
func subscriptionBackend(st store.Store) (subscription.Backend, func() error, error) {
	if sq, ok := st.(*store.SQLite); ok {
		return sq, nil, nil
	}
	path := cfg.Store.SQLitePath
	if path == "" {
		path = "orderscout.db"
	}
	sq, err := store.OpenSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open subscription db: %w", err)
	}
	return sq, sq.Close, nil
}
