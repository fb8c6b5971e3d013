package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"botinsta/pkg/config"
	"botinsta/pkg/logger"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "botinsta",
	Short: "Instagram comment engagement bot with a web dashboard",
	Long: `botinsta runs per-account engagement jobs that like comments on
posts pulled from hashtag or explore feeds, pacing likes to look human
and pausing automatically when Instagram pushes back.

Features:
  - Per-account background jobs with persistent state across restarts
  - Human-like pacing derived from a likes-per-window target
  - Automatic rate-limit pause with probing resume
  - Web dashboard with live job events over WebSocket
  - Secure credential storage using the system keychain`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .botinsta.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`botinsta {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration honoring the global flags and
// initializes the global logger.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}
