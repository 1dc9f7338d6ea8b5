package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"orderscout/internal/browser"
	"orderscout/internal/cache"
	"orderscout/internal/config"
	"orderscout/internal/executor"
	"orderscout/internal/orchestrator"
	"orderscout/internal/ports"
	"orderscout/internal/registry"
)

var (
	flagLogin  string
	flagSecret string
	flagJSON   bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify marketplace credentials",
	Long:  `Performs one login and reports whether the credentials work.`,
	RunE:  runLogin,
}

var searchCmd = &cobra.Command{
	Use:   "search [keyword]...",
	Short: "Run a one-shot search and print the results",
	Long: `Logs in, searches every keyword, merges and deduplicates the results
and prints them ranked by recency. Repeated keywords against the same
process hit the result cache.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, searchCmd} {
		c.Flags().StringVarP(&flagLogin, "login", "l", "", "marketplace login (phone or email)")
		c.Flags().StringVarP(&flagSecret, "secret", "s", "", "marketplace password, or set ORDERSCOUT_SECRET")
		_ = c.MarkFlagRequired("login")
	}
	searchCmd.Flags().BoolVar(&flagJSON, "json", false, "print results as JSON")
}

// staticCredentials serves one fixed login/secret pair, for the
// one-shot commands.
type staticCredentials struct {
	creds ports.Credentials
}

func (s staticCredentials) Credentials(ctx context.Context, identity string) (ports.Credentials, error) {
	return s.creds, nil
}

func resolveSecret() (string, error) {
	if flagSecret != "" {
		return flagSecret, nil
	}
	if v := os.Getenv("ORDERSCOUT_SECRET"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("password required: pass --secret or set ORDERSCOUT_SECRET")
}

// oneShotPool builds a single-session pool for manual commands.
func oneShotPool(ctx context.Context) (*browser.Pool, error) {
	single := cfg.Browser
	single.PoolSize = 1
	return browser.NewPool(ctx, browser.NewRodFactory(single), 1)
}

func runLogin(cmd *cobra.Command, args []string) error {
	secret, err := resolveSecret()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pool, err := oneShotPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := registry.New()
	login := executor.NewLoginExecutor(pool, reg, func() *config.Config { return cfg })

	sessionID, err := login.Authenticate(ctx, flagLogin, secret)
	if err != nil {
		return err
	}
	jar, err := reg.Cookies(sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("login ok: session %s, %d cookies captured\n", sessionID, len(jar))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	secret, err := resolveSecret()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pool, err := oneShotPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	conf := func() *config.Config { return cfg }
	reg := registry.New()
	resultCache := cache.New(cfg.Cache.TTL(), cfg.Cache.Sweep())
	defer resultCache.Close()

	orch := orchestrator.New(
		resultCache,
		reg,
		executor.NewLoginExecutor(pool, reg, conf),
		executor.NewSearchExecutor(pool, reg, conf),
		executor.NewRespondExecutor(pool, reg, conf),
		staticCredentials{creds: ports.Credentials{Login: flagLogin, Secret: secret}},
	)

	orders, err := orch.BatchSearch(ctx, flagLogin, args)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(orders)
	}

	if len(orders) == 0 {
		fmt.Println("no orders found")
		return nil
	}
	for i, order := range orders {
		fmt.Printf("%2d. %s\n", i+1, order.Title)
		if order.Price != "" && order.Price != "0" {
			fmt.Printf("    price: %s\n", order.Price)
		}
		fmt.Printf("    posted: %s (weight %d)\n", order.CreatedText, order.Weight)
	}
	fmt.Printf("%d orders total\n", len(orders))
	return nil
}
