package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxmail/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// logLevel is shared by the handler installed in PersistentPreRunE and the
// config watcher of the serve command.
var logLevel slog.LevelVar

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "voxmail",
		Short:         "Voice commands to email and spoken assistant replies",
		Long:          "voxmail transcribes spoken requests, resolves the recipient from a contact directory, drafts the email and sends it. It also answers general questions with synthesized speech.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel})))
			if flags.logLevel != "" {
				l := config.LogLevel(flags.logLevel)
				if !l.IsValid() {
					return fmt.Errorf("invalid --log-level %q", flags.logLevel)
				}
				logLevel.Set(l.Level())
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newEmailCmd(flags),
		newAskCmd(flags),
		newContactsCmd(flags),
		newMCPCmd(flags),
	)
	return rootCmd
}

// loadConfig reads the config file and applies its log level unless the
// flag overrides it.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, configError(flags.configPath, err)
	}
	applyLogLevel(flags, cfg)
	return cfg, nil
}

func applyLogLevel(flags *rootFlags, cfg *config.Config) {
	if flags.logLevel == "" {
		logLevel.Set(cfg.Server.LogLevel.Level())
	}
}

func configError(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return err
}
