package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxmail/internal/app"
	"github.com/MrWong99/voxmail/internal/config"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var pollInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			watcher, err := config.NewWatcher(flags.configPath, app.ReloadHandler(&logLevel), config.WithInterval(pollInterval))
			if err != nil {
				return configError(flags.configPath, err)
			}
			cfg := watcher.Current()
			applyLogLevel(flags, cfg)

			slog.Info("voxmail starting",
				"version", version,
				"config", flags.configPath,
				"listen_addr", cfg.Server.ListenAddr,
				"log_level", cfg.Server.LogLevel,
			)

			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			providers, err := app.BuildProviders(cfg, reg)
			if err != nil {
				return fmt.Errorf("build providers: %w", err)
			}

			printStartupSummary(cmd.OutOrStdout(), cfg)

			application, err := app.New(ctx, cfg, providers, app.WithWatcher(watcher), app.WithVersion(version))
			if err != nil {
				return err
			}

			slog.Info("server ready, press Ctrl+C to shut down")
			runErr := application.Run(ctx)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				slog.Error("run error", "err", runErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := application.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			slog.Info("goodbye")
			return nil
		},
	}
	cmd.Flags().DurationVar(&pollInterval, "config-poll", 5*time.Second, "how often to check the config file for changes")
	return cmd
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         voxmail: startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "LLM", cfg.Providers.LLM)
	printProvider(w, "STT", cfg.Providers.STT)
	printProvider(w, "TTS", cfg.Providers.TTS)
	printRow(w, "Mail", cfg.Mail.Host)
	printRow(w, "Directory", string(cfg.Directory.Backend))
	printRow(w, "Listen addr", cfg.Server.ListenAddr)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind string, e config.ProviderEntry) {
	value := e.Name
	switch {
	case value == "":
		value = "(not configured)"
	case e.Model != "":
		value = e.Name + " / " + e.Model
	}
	if n := len(e.Fallbacks); n > 0 {
		value = fmt.Sprintf("%s +%d", value, n)
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}
