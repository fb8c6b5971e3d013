package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"botinsta/pkg/auth"
	"botinsta/pkg/bot"
	"botinsta/pkg/instagram"
	"botinsta/pkg/logger"
)

var (
	runMode    string
	runTag     string
	runSort    string
	runStartAt string
)

// runCmd runs a single job in the foreground without the dashboard
var runCmd = &cobra.Command{
	Use:   "run <account>",
	Short: "Run a single engagement job in the foreground",
	Long: `Run one engagement job without the dashboard server. The job logs
its progress to the console and stops on Ctrl-C.

Foreground jobs are not persisted; use 'botinsta serve' for jobs that
should survive restarts.`,
	Example: `  # Like comments on recent posts for a hashtag
  botinsta run myaccount --mode hashtag --tag sunset

  # Work the explore feed starting at half past nine tonight
  botinsta run myaccount --mode explore --start-at 21:30`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runMode, "mode", "hashtag", "feed mode (hashtag, explore)")
	runCmd.Flags().StringVar(&runTag, "tag", "", "hashtag to work (required for hashtag mode)")
	runCmd.Flags().StringVar(&runSort, "sort", "recent", "hashtag feed ordering (recent, top)")
	runCmd.Flags().StringVar(&runStartAt, "start-at", "", "delayed start (RFC 3339 or HH:MM)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	account := instagram.SanitizeUsername(args[0])
	log := logger.GetLogger()

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	client := instagram.NewClient(cfg.Instagram, manager, log)

	// Echo job events to the console log
	notifier := bot.NotifierFunc(func(event bot.Event) {
		logger.LogJobEvent(event.Account, string(event.Status), event.Message, event.Likes)
	})

	registry := bot.NewRegistry(client, notifier, nil, pacingFromConfig(cfg.Pacing), log)

	snapshot, err := registry.Start(bot.StartRequest{
		Account: account,
		Mode:    bot.Mode(runMode),
		Target:  runTag,
		Sort:    bot.Sort(runSort),
		StartAt: runStartAt,
	})
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	if snapshot.ScheduledAt != nil {
		fmt.Printf("Job for %s scheduled at %s. Press Ctrl-C to cancel.\n",
			account, snapshot.ScheduledAt.Format("2006-01-02 15:04"))
	} else {
		fmt.Printf("Job for %s running. Press Ctrl-C to stop.\n", account)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("\nStopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := registry.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("job did not stop in time")
	}

	final, statusErr := registry.Status(account)
	if statusErr == nil {
		fmt.Printf("Done. %d comments liked.\n", final.Likes)
	}
	return nil
}
