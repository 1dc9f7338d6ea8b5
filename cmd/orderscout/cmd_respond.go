package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orderscout/internal/cache"
	"orderscout/internal/config"
	"orderscout/internal/executor"
	"orderscout/internal/orchestrator"
	"orderscout/internal/ports"
	"orderscout/internal/registry"
)

var flagMessage string

var respondCmd = &cobra.Command{
	Use:   "respond [order-id]",
	Short: "Place a response on one order",
	Long: `Logs in under the given credentials, opens the order page and submits
a response through the page's own respond form.`,
	Args: cobra.ExactArgs(1),
	RunE: runRespond,
}

func init() {
	respondCmd.Flags().StringVarP(&flagLogin, "login", "l", "", "marketplace login (phone or email)")
	respondCmd.Flags().StringVarP(&flagSecret, "secret", "s", "", "marketplace password, or set ORDERSCOUT_SECRET")
	respondCmd.Flags().StringVarP(&flagMessage, "message", "m", "Хочу выполнить заказ!", "response text")
	_ = respondCmd.MarkFlagRequired("login")
}

func runRespond(cmd *cobra.Command, args []string) error {
	secret, err := resolveSecret()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	orderID := args[0]

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

	if err := orch.Respond(ctx, flagLogin, orderID, flagMessage); err != nil {
		return err
	}
	fmt.Printf("response sent for order %s\n", orderID)
	return nil
}
