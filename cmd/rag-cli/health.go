package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := apiClient.CheckHealth(cmd.Context())
		if err != nil {
			term.Error("Server unreachable: %v", err)
			return err
		}

		if jsonMode {
			json.NewEncoder(os.Stdout).Encode(report)
		} else {
			if report.Status == "ok" {
				term.Success("Server healthy (v%s)", report.Version)
			} else {
				term.Warning("Server %s (v%s)", report.Status, report.Version)
			}
			term.KeyValue("database", report.Database)
			for name, value := range report.Providers {
				term.KeyValue(name, value)
			}
		}

		if report.Status != "ok" {
			return fmt.Errorf("server reported %s", report.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
