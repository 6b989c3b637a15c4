package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	keysOrg string
	keysAll bool
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the server's org-key cache",
}

var keysInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop cached decryption keys",
	Long: `Drop cached org decryption keys server-side. Keys are re-unwrapped from
the database on next use; run this after rotating wrapped keys.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keysOrg == "" && !keysAll {
			return fmt.Errorf("pass --org <id> or --all")
		}
		if keysOrg != "" && keysAll {
			return fmt.Errorf("--org and --all are mutually exclusive")
		}

		if err := apiClient.InvalidateKeys(cmd.Context(), keysOrg); err != nil {
			term.Error("Invalidation failed: %v", err)
			return err
		}

		if keysAll {
			term.Success("All cached keys invalidated")
		} else {
			term.Success("Cached key for %s invalidated", keysOrg)
		}
		return nil
	},
}

func init() {
	keysInvalidateCmd.Flags().StringVarP(&keysOrg, "org", "o", "", "organization id")
	keysInvalidateCmd.Flags().BoolVar(&keysAll, "all", false, "invalidate every cached key")

	keysCmd.AddCommand(keysInvalidateCmd)
	rootCmd.AddCommand(keysCmd)
}
