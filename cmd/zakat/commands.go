package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ZakatSentinel/internal/api"
	"ZakatSentinel/internal/config"
	"ZakatSentinel/internal/hijri"
	"ZakatSentinel/internal/notifier"
	"ZakatSentinel/internal/store"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd, analyzeCmd, markPaidCmd, historyCmd, keygenCmd, resetCmd)

	markPaidCmd.Flags().String("date", "", "Payment date (YYYY-MM-DD or DD.MM.YYYY), defaults to today")
	markPaidCmd.Flags().String("amount", "", "Amount paid")
	_ = markPaidCmd.MarkFlagRequired("amount")
	resetCmd.Flags().Bool("yes", false, "Confirm deleting the encrypted history")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monthly scheduler, Telegram commands and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.sched.Register(a.cfg.Schedule.MonthlyCron); err != nil {
			return err
		}
		a.sched.Start()
		defer a.sched.Stop()
		a.sched.StartRecovery()

		if a.telegram != nil {
			go a.telegram.StartPolling(ctx, a.sched.HandleCommand)
			log.Info("telegram polling started")
		}

		if addr := a.cfg.API.ListenAddr; addr != "" {
			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewServer(a.sched, a.recorder, a.metrics).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				log.Infof("HTTP API listening on %s", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("HTTP API: %v", err)
					stop()
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		log.Info("zakat monitor is running. Press Ctrl+C to stop.")
		<-ctx.Done()
		log.Info("shutdown signal received, stopping...")
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Collect balances once, update the history and print the verdict",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.sched.RunNow(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), stripTags(notifier.FormatVerdictReport(notifier.Report{
			Observation:    out.Observation,
			Balances:       out.Balances,
			Threshold:      out.Threshold,
			Verdict:        out.Verdict,
			RequiredMonths: a.cfg.Levy.RequiredConsecutiveMonths,
			Currency:       a.cfg.Currency,
		})))
		return nil
	},
}

var markPaidCmd = &cobra.Command{
	Use:   "mark-paid",
	Short: "Record a zakat payment; the lunar-year count restarts after it",
	RunE: func(cmd *cobra.Command, args []string) error {
		dateStr, _ := cmd.Flags().GetString("date")
		amountStr, _ := cmd.Flags().GetString("amount")

		date := today()
		if dateStr != "" {
			d, err := hijri.ParseGregorian(dateStr)
			if err != nil {
				return err
			}
			date = d
		}
		amount, err := parseAmount(amountStr)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.sched.MarkPaid(date, amount); err != nil {
			return err
		}
		h, _ := hijri.FromGregorian(date)
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded payment of %s %s on %s (%s)\n",
			amount.StringFixed(2), a.cfg.Currency, date.Format(time.DateOnly), h)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored lunar-month history",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		l, err := a.tracker.History()
		if err != nil {
			return err
		}
		th := a.nisab.Current(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), stripTags(notifier.FormatHistory(l.Entries, l.Payments, th.Value, a.cfg.Currency)))
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a random secret for ZAKAT_ENCRYPTION_KEY",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := store.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), k)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the encrypted history (needed after losing the key)",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to delete history without --yes")
		}
		// No Validate: reset is how an operator recovers from a lost key.
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		s := store.NewFileStore(cfg.History.File)
		if !s.Exists() {
			fmt.Fprintln(cmd.OutOrStdout(), "No history file to delete")
			return nil
		}
		if err := s.Reset(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", s.Path)
		return nil
	},
}
