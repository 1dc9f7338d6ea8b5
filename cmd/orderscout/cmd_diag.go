package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orderscout/internal/browser"
	"orderscout/internal/store"
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Check that the environment can run orderscout",
	Long: `Launches one browser session, opens the marketplace and verifies the
page becomes ready, then checks the configured store answers. Use this
after deploying to a new host.`,
	RunE: runDiag,
}

func runDiag(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ok := true

	fmt.Printf("config: %s loaded\n", configPath)

	session, err := browser.NewRodFactory(cfg.Browser)(ctx)
	if err != nil {
		ok = false
		fmt.Printf("browser: FAIL (%v)\n", err)
	} else {
		d := session.Driver()
		if err := d.Navigate(ctx, cfg.Endpoints.LoginURL); err != nil {
			ok = false
			fmt.Printf("browser: launched, navigation FAIL (%v)\n", err)
		} else if err := browser.WaitReady(ctx, d, cfg.Timing.PageReady(), cfg.Timing.PollInterval()); err != nil {
			ok = false
			fmt.Printf("browser: %s never became ready\n", cfg.Endpoints.LoginURL)
		} else {
			url, _ := d.CurrentURL(ctx)
			fmt.Printf("browser: ok, landed on %s\n", url)
		}
		d.Close()
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		ok = false
		fmt.Printf("store: FAIL (%v)\n", err)
	} else {
		if _, err := st.Seen(ctx, "diag"); err != nil {
			ok = false
			fmt.Printf("store: open but query FAIL (%v)\n", err)
		} else {
			driver := cfg.Store.Driver
			if driver == "" {
				driver = "sqlite"
			}
			fmt.Printf("store: ok (%s)\n", driver)
		}
		st.Close()
	}

	if cfg.Telegram.Token == "" {
		fmt.Println("telegram: no token configured, notifications disabled")
	} else {
		fmt.Println("telegram: token present")
	}

	if !ok {
		return fmt.Errorf("diagnostics failed")
	}
	fmt.Println("all checks passed")
	return nil
}
