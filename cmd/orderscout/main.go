package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"orderscout/internal/config"
	"orderscout/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded by PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "orderscout",
	Short: "orderscout - marketplace order search automation",
	Long: `orderscout watches a freelance marketplace for new client orders.

It keeps a small pool of browser sessions, logs into accounts once and
reuses the authenticated cookies, searches by keyword, ranks results by
how recently they were posted and delivers new ones to Telegram chats.

Run "orderscout serve" to start the full engine, or use the one-shot
login/search commands for manual operation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		if err := logging.Initialize(cfg.Logging.LogDir(), logging.Settings{
			Enabled:    cfg.Logging.Enabled,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return fmt.Errorf("failed to initialize category logs: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "orderscout.yaml", "path to YAML config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(respondCmd)
	rootCmd.AddCommand(keywordsCmd)
	rootCmd.AddCommand(diagCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
