package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "settlementsam",
	Short:         "Injury-claim lead intake and delivery service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default config/config.yaml)")

	schedulePreviewCmd.Flags().Int("qty", 0, "number of leads purchased")
	schedulePreviewCmd.Flags().String("mode", "standard", "throttle mode: conservative, standard or aggressive")
	schedulePreviewCmd.Flags().String("start", "", "first delivery date, YYYY-MM-DD (default today)")
	schedulePreviewCmd.Flags().Bool("skip-weekends", false, "leave Saturdays and Sundays empty (default delivery.skip_weekends)")
	schedulePreviewCmd.Flags().String("tz", "", "IANA time zone for today and --start (default delivery.time_zone, else UTC)")
	_ = schedulePreviewCmd.MarkFlagRequired("qty")
	scheduleCmd.AddCommand(schedulePreviewCmd)

	hashPasswordCmd.Flags().Int("cost", 0, "bcrypt cost (default bcrypt.DefaultCost)")

	rootCmd.AddCommand(serveCmd, migrateCmd, scheduleCmd, hashPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
