// Package cli defines the waveform command tree.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rbright/waveform/internal/version"
)

// Options carries global flags and output streams to every action.
type Options struct {
	ConfigPath string
	Stdout     io.Writer
	Stderr     io.Writer
}

// StartFlags are the optional arguments of `waveform start`.
type StartFlags struct {
	Path           string
	Encoder        int
	EncoderSet     bool
	SampleRate     int
	FileNameFormat string
}

// Actions is implemented by the application runner.
type Actions interface {
	Serve(*cobra.Command, Options) error
	Start(*cobra.Command, Options, StartFlags) error
	Stop(*cobra.Command, Options) error
	Pause(*cobra.Command, Options) error
	Decibel(*cobra.Command, Options) error
	Permission(*cobra.Command, Options) error
	Status(*cobra.Command, Options) error
	Devices(*cobra.Command, Options) error
	Doctor(*cobra.Command, Options) error
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewRootCmd builds the command tree around actions.
func NewRootCmd(actions Actions, stdout, stderr io.Writer) *cobra.Command {
	opts := &Options{Stdout: stdout, Stderr: stderr}

	rootCmd := &cobra.Command{
		Use:           "waveform",
		Short:         "Record microphone audio to compressed files",
		Long:          "waveform owns one recording session and exposes start, stop, pause, level metering and permission checks to host processes over a unix socket.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.String() + "\n")
	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/waveform/config.toml)")

	simple := func(use, short string, fn func(*cobra.Command, Options) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runtimeError(fn(cmd, *opts))
			},
		}
	}

	rootCmd.AddCommand(
		simple("serve", "Run the owner process that holds the recording session", actions.Serve),
		NewStartCmd(actions, opts),
		simple("stop", "Stop recording and print the output path", actions.Stop),
		simple("pause", "Pause the active recording", actions.Pause),
		simple("decibel", "Print the current input level in dBFS", actions.Decibel),
		simple("permission", "Check, and if needed request, record permission", actions.Permission),
		simple("status", "Print the owner's session state", actions.Status),
		simple("devices", "List available input devices", actions.Devices),
		simple("doctor", "Run configuration and environment checks", actions.Doctor),
		NewVersionCmd(),
	)

	return rootCmd
}

// NewStartCmd builds `waveform start`.
func NewStartCmd(actions Actions, opts *Options) *cobra.Command {
	var flags StartFlags

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start recording",
		Long:  "Start recording on the owner process. Without --path the file is written to the temp dir, named by --format.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.EncoderSet = cmd.Flags().Changed("encoder")
			return runtimeError(actions.Start(cmd, *opts, flags))
		},
	}

	cmd.Flags().StringVarP(&flags.Path, "path", "p", "", "output file path")
	cmd.Flags().IntVarP(&flags.Encoder, "encoder", "e", 0, "encoder code: 0 aac, 1 aac-eld, 2 aac-he, 3 opus, 4 amr, 5 amr-wb")
	cmd.Flags().IntVarP(&flags.SampleRate, "sample-rate", "r", 0, "sample rate in Hz (default from config)")
	cmd.Flags().StringVarP(&flags.FileNameFormat, "format", "f", "", "date pattern for generated file names, e.g. yyyyMMdd-HHmmss")

	return cmd
}

// NewVersionCmd builds `waveform version`.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// runtimeError marks action failures so they exit 1 instead of 2.
func runtimeError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: 1, Err: err}
}
