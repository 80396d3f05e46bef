// Package main is the production entry point for dtune.
//
// dtune is a per-guild music playback engine for Discord voice channels:
// - One session per guild with its own queue and voice connection
// - Event-driven communication between sessions and front-ends
// - Pluggable media resolvers (YouTube, yt-dlp)
//
// Build:
//
//	go build -o build/dtune ./cmd
//
// Run:
//
//	./build/dtune run
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/dtune/internal/app"
	"github.com/tejashwikalptaru/dtune/internal/config"
)

var envFiles []string

func main() {
	root := &cobra.Command{
		Use:          "dtune",
		Short:        "Music playback for Discord voice channels",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVarP(&envFiles, "env-file", "e", nil, "env files to load (default: .env)")

	root.AddCommand(runCmd(), searchCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newApplication() (*app.Application, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.NewApplication(*cfg)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve playback",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}

			// Ensure a graceful shutdown
			defer func() {
				if err := application.Shutdown(); err != nil {
					fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Run application (blocks until a signal arrives)
			return application.Run(ctx)
		},
	}
}

func searchCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the configured resolver and print candidates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			defer application.Shutdown()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			results, err := application.Controller().Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s [%s] %s\n", i+1, r.Title, r.Duration, r.URL)
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "search timeout")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := app.GetVersionInfo()
			fmt.Fprintln(cmd.OutOrStdout(), info.FullString())
			fmt.Fprintf(cmd.OutOrStdout(), "  go version: %s\n  platform:   %s\n", info.GoVersion, info.Platform)
		},
	}
}
