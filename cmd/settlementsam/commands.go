package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"settlementsam/internal/app"
	"settlementsam/internal/config"
	"settlementsam/internal/logger"
	"settlementsam/internal/throttle"
)

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// serveCmd runs the HTTP API until SIGINT or SIGTERM.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		return a.Run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the SQL schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()
		if cfg.Database.Driver == "firestore" {
			return fmt.Errorf("migrate: firestore needs no schema")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		store, err := app.OpenStore(ctx, cfg)
		if err != nil {
			return err
		}
		log.Info("[migrate] schema up to date", zap.String("driver", cfg.Database.Driver))
		return store.Close()
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Delivery schedule tools",
}

var now = time.Now

// previewSettings resolves the delivery zone and weekend rule. Flags win over
// the config file; without either the plan is laid out in UTC.
func previewSettings(cmd *cobra.Command) (*time.Location, bool, error) {
	tz, _ := cmd.Flags().GetString("tz")
	skip, _ := cmd.Flags().GetBool("skip-weekends")

	loc := time.UTC
	if cfg, err := config.Load(configPath); err == nil {
		loc = cfg.Location()
		if !cmd.Flags().Changed("skip-weekends") {
			skip = cfg.Delivery.SkipWeekends
		}
	}
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, false, fmt.Errorf("--tz: %w", err)
		}
		loc = l
	}
	return loc, skip, nil
}

// schedulePreviewCmd prints the per-day targets a purchase would get without
// touching the store.
var schedulePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the delivery plan for a package",
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, _ := cmd.Flags().GetInt("qty")
		modeFlag, _ := cmd.Flags().GetString("mode")
		startFlag, _ := cmd.Flags().GetString("start")

		mode, err := throttle.ParseMode(modeFlag)
		if err != nil {
			return err
		}
		loc, skip, err := previewSettings(cmd)
		if err != nil {
			return err
		}
		start := now().In(loc)
		if startFlag != "" {
			start, err = time.ParseInLocation(throttle.DateLayout, startFlag, loc)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
		}
		plan, err := throttle.Generate(qty, start, mode, nil, throttle.SkipWeekends(skip))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, d := range plan.Dates() {
			fmt.Fprintf(out, "%s  %3d\n", d, plan[d])
		}
		fmt.Fprintf(out, "total       %3d over %d days\n", plan.Total(), len(plan))
		return nil
	},
}

// hashPasswordCmd reads a password from stdin and prints the bcrypt hash
// for auth.admins[].password_hash.
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash an admin password read from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		cost, _ := cmd.Flags().GetInt("cost")
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		pw := strings.TrimRight(line, "\r\n")
		if pw == "" {
			return fmt.Errorf("empty password")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}
