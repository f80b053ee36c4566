package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"newsbot/internal/app"
	"newsbot/internal/config"
	"newsbot/internal/schedule"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "newsbot",
		Short:         "Scheduled newsletter automation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadEnvFiles()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config file (yaml or json)")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newValidateCmd(&cfgPath),
		newNextRunCmd(),
	)
	return root
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.NewApp(*cfgPath)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer stopCancel()
				_ = a.Stop(stopCtx, app.StopFatalError)
				return fmt.Errorf("start: %w", err)
			}

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer stopCancel()
			if err := a.Stop(stopCtx, reason); err != nil {
				return err
			}
			if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newValidateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Parse and validate the config file without starting anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.NewConfigManager(*cfgPath).Load(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", *cfgPath)
			return nil
		},
	}
}

func newNextRunCmd() *cobra.Command {
	var (
		tz    string
		from  string
		count int
	)
	cmd := &cobra.Command{
		Use:     "next-run <daily|weekly|monthly> <HH:MM>",
		Short:   "Print upcoming run times for a schedule timing",
		Example: "  newsbot next-run weekly 09:30 --tz Europe/Berlin -n 3",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			if strings.TrimSpace(tz) != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return fmt.Errorf("invalid --tz %q: %w", tz, err)
				}
				loc = l
			}
			now := time.Now().In(loc)
			if from != "" {
				t, err := time.ParseInLocation("2006-01-02T15:04", from, loc)
				if err != nil {
					return fmt.Errorf("invalid --from %q (want YYYY-MM-DDTHH:MM): %w", from, err)
				}
				now = t
			}
			if count <= 0 {
				count = 1
			}
			freq := schedule.Frequency(strings.ToLower(args[0]))
			for i := 0; i < count; i++ {
				next, err := schedule.NextRun(freq, args[1], now)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), next.Format(time.RFC3339))
				now = next
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "timezone (default: local)")
	cmd.Flags().StringVar(&from, "from", "", "reference time YYYY-MM-DDTHH:MM (default: now)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of run times to print")
	return cmd
}
