package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orderscout/internal/store"
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Manage an identity's saved keyword set",
}

var keywordsIdentity string

var keywordsAddCmd = &cobra.Command{
	Use:   "add [keyword]...",
	Short: "Add keywords to the identity's set",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(st store.Store) error {
			for _, kw := range args {
				if err := st.AddKeyword(cmd.Context(), keywordsIdentity, kw); err != nil {
					return err
				}
			}
			fmt.Printf("added %d keyword(s)\n", len(args))
			return nil
		})
	},
}

var keywordsRemoveCmd = &cobra.Command{
	Use:   "remove [keyword]...",
	Short: "Remove keywords from the identity's set",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(st store.Store) error {
			for _, kw := range args {
				if err := st.RemoveKeyword(cmd.Context(), keywordsIdentity, kw); err != nil {
					return err
				}
			}
			fmt.Printf("removed %d keyword(s)\n", len(args))
			return nil
		})
	},
}

var keywordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the identity's saved keywords",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(st store.Store) error {
			kws, err := st.Keywords(cmd.Context(), keywordsIdentity)
			if err != nil {
				return err
			}
			if len(kws) == 0 {
				fmt.Println("no keywords saved")
				return nil
			}
			for _, kw := range kws {
				fmt.Println(kw)
			}
			return nil
		})
	},
}

func init() {
	keywordsCmd.PersistentFlags().StringVarP(&keywordsIdentity, "identity", "i", "", "chat id the keywords belong to")
	_ = keywordsCmd.MarkPersistentFlagRequired("identity")
	keywordsCmd.AddCommand(keywordsAddCmd, keywordsRemoveCmd, keywordsListCmd)
}

func withStore(cmd *cobra.Command, fn func(store.Store) error) error {
	st, err := store.Open(cmd.Context(), cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
