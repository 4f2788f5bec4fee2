package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxmail/internal/app"
	"github.com/MrWong99/voxmail/internal/config"
	"github.com/MrWong99/voxmail/internal/pipeline"
	"github.com/MrWong99/voxmail/pkg/provider/stt"
)

var errNoInput = errors.New("pass an audio file or --text")

func newEmailCmd(flags *rootFlags) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "email [audio-file]",
		Short: "Run the email flow once on a recording or a typed request",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := readAudio(args, text)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), flags, func(a *app.App) error {
				ctx := cmd.Context()
				var res pipeline.EmailResult
				if text != "" {
					res = a.Pipeline().EmailText(ctx, text)
				} else {
					res = a.Pipeline().Email(ctx, audio)
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Delivered {
					return errors.New(res.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "use this transcript instead of an audio file")
	return cmd
}

func newAskCmd(flags *rootFlags) *cobra.Command {
	var text, out string
	cmd := &cobra.Command{
		Use:   "ask [audio-file]",
		Short: "Ask the assistant once and optionally save the spoken reply",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := readAudio(args, text)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), flags, func(a *app.App) error {
				ctx := cmd.Context()
				var res pipeline.AssistantResult
				if text != "" {
					res = a.Pipeline().AssistText(ctx, text)
				} else {
					res = a.Pipeline().Assist(ctx, audio)
				}
				if res.Reply == "" {
					return errors.New(res.Status)
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Reply)

				if out == "" {
					return nil
				}
				if res.Speech == nil {
					return errors.New(res.Status)
				}
				if err := os.WriteFile(out, res.Speech.Data, 0o644); err != nil {
					return fmt.Errorf("write reply audio: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "reply audio (%s) written to %s\n", res.Speech.Format, out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "use this transcript instead of an audio file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the synthesized reply to this file")
	return cmd
}

// readAudio loads the recording named by args. It returns a zero Audio when
// text is used instead.
func readAudio(args []string, text string) (stt.Audio, error) {
	switch {
	case text != "" && len(args) > 0:
		return stt.Audio{}, errors.New("pass either an audio file or --text, not both")
	case text != "":
		return stt.Audio{}, nil
	case len(args) == 0:
		return stt.Audio{}, errNoInput
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return stt.Audio{}, err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(args[0])), ".")
	if format == "" {
		format = "wav"
	}
	return stt.Audio{Data: data, Format: format}, nil
}

// withApp builds the full application for a single run and shuts it down
// afterwards.
func withApp(ctx context.Context, flags *rootFlags, fn func(*app.App) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}
	a, err := app.New(ctx, cfg, providers, app.WithVersion(version))
	if err != nil {
		return err
	}
	defer a.Shutdown(context.Background())
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
