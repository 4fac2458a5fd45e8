// Package app wires configuration, logging, the recording session and the
// bridge behind the command tree.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/status"

	"github.com/rbright/waveform/internal/audio"
	"github.com/rbright/waveform/internal/bridge"
	"github.com/rbright/waveform/internal/cli"
	"github.com/rbright/waveform/internal/config"
	"github.com/rbright/waveform/internal/cue"
	"github.com/rbright/waveform/internal/doctor"
	"github.com/rbright/waveform/internal/encode"
	"github.com/rbright/waveform/internal/fsm"
	"github.com/rbright/waveform/internal/logging"
	"github.com/rbright/waveform/internal/platform"
	"github.com/rbright/waveform/internal/recorder"
)

const shutdownTimeout = 5 * time.Second

var errNoOwner = errors.New("no waveform owner running; start one with `waveform serve`")

// Runner executes commands against process streams.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Platform replaces the Pulse platform in the owner process when set.
	Platform recorder.Platform
}

// Execute runs args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute runs args: 0 on success, 1 on runtime failure, 2 on usage errors.
func (r Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRootCmd(r, r.Stdout, r.Stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}

	fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
	fmt.Fprint(r.Stderr, root.UsageString())
	return 2
}

// runtime is the per-command config and logger.
type runtime struct {
	loaded config.Loaded
	logger *slog.Logger
	log    logging.Runtime
}

func (rt runtime) close() {
	_ = rt.log.Close()
}

func (r Runner) setup(cmd *cobra.Command, opts cli.Options) (runtime, error) {
	loaded, err := config.Load(opts.ConfigPath)
	if err != nil {
		return runtime{}, err
	}

	level, err := config.ParseLevel(loaded.Config.Log.Level)
	if err != nil {
		return runtime{}, err
	}
	logRuntime, err := logging.New(logging.Options{
		Level:      level,
		MaxSizeMB:  loaded.Config.Log.MaxSizeMB,
		MaxBackups: loaded.Config.Log.MaxBackups,
	})
	if err != nil {
		return runtime{}, fmt.Errorf("setup logging: %w", err)
	}

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", cmd.Name(),
		"config", loaded.Path,
		"log", logRuntime.Path,
	)
	return runtime{loaded: loaded, logger: logger, log: logRuntime}, nil
}

// Serve runs the owner process until the context is cancelled.
func (r Runner) Serve(cmd *cobra.Command, opts cli.Options) error {
	ctx := cmd.Context()
	rt, err := r.setup(cmd, opts)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.loaded.Config, rt.logger

	socketPath, err := bridge.ResolveSocketPath(cfg.Bridge.Socket)
	if err != nil {
		return err
	}
	listener, err := bridge.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, bridge.ErrAlreadyRunning) {
			return fmt.Errorf("%w at %s", err, socketPath)
		}
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	plat := r.Platform
	if plat == nil {
		plat = platform.New(logger, platformOptions(cfg, logger))
	}
	cues := cue.NewPlayer(cfg.Cues, logger)
	session := recorder.New(logger, plat, cues, sessionOptions(cfg))
	srv := bridge.NewServer(logger, session)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bridge.Serve(gctx, listener, srv)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		session.Close(shutdownCtx)
		cues.Wait()
		return nil
	})

	fmt.Fprintf(r.Stdout, "serving on %s\n", socketPath)
	logger.Info("owner started", "socket", socketPath, "pid", os.Getpid())

	err = g.Wait()
	logger.Info("owner stopped", "socket", socketPath)
	if err != nil {
		return fmt.Errorf("bridge server failed: %w", err)
	}
	return nil
}

func sessionOptions(cfg config.Config) recorder.Options {
	quality, err := encode.ParseQuality(cfg.Recording.Quality)
	if err != nil {
		quality = encode.QualityHigh
	}
	return recorder.Options{
		TempDir:               cfg.Recording.TempDir,
		DefaultSampleRate:     cfg.Recording.SampleRate,
		DefaultFileNameFormat: cfg.Recording.FileNameFormat,
		Quality:               quality,
		AwaitPermission:       cfg.Permission.AwaitRequest,
	}
}

func platformOptions(cfg config.Config, logger *slog.Logger) platform.Options {
	opts := platform.Options{
		Preference: audio.Preference{
			Input:          cfg.Audio.Input,
			Fallback:       cfg.Audio.Fallback,
			AllowBluetooth: cfg.Audio.AllowBluetooth,
		},
		FFmpegPath:        cfg.Recording.FFmpegPath,
		PermissionTimeout: time.Duration(cfg.Permission.RequestTimeoutMS) * time.Millisecond,
	}
	if cfg.Debug.AudioDump {
		dir, err := logging.StateDir()
		if err != nil {
			logger.Warn("audio dump disabled", "error", err.Error())
		} else {
			opts.DumpDir = filepath.Join(dir, "debug")
		}
	}
	return opts
}

// Start asks the owner to begin recording and prints the output path.
func (r Runner) Start(cmd *cobra.Command, opts cli.Options, flags cli.StartFlags) error {
	return r.withClient(cmd, opts, func(ctx context.Context, client *bridge.Client) error {
		args := bridge.StartArgs{
			Path:           flags.Path,
			SampleRate:     flags.SampleRate,
			FileNameFormat: flags.FileNameFormat,
		}
		if flags.EncoderSet {
			args.Encoder = &flags.Encoder
		}
		if _, err := client.StartRecording(ctx, args); err != nil {
			return rpcError(err)
		}

		st, err := client.Status(ctx)
		if err != nil {
			return rpcError(err)
		}
		fmt.Fprintf(r.Stdout, "recording %s\n", st.Path)
		return nil
	})
}

// Stop halts recording and prints the output path, if any.
func (r Runner) Stop(cmd *cobra.Command, opts cli.Options) error {
	return r.withClient(cmd, opts, func(ctx context.Context, client *bridge.Client) error {
		path, ok, err := client.StopRecording(ctx)
		if err != nil {
			return rpcError(err)
		}
		if ok {
			fmt.Fprintln(r.Stdout, path)
		}
		return nil
	})
}

// Pause pauses the owner's recorder and prints the resulting state.
func (r Runner) Pause(cmd *cobra.Command, opts cli.Options) error {
	return r.withClient(cmd, opts, func(ctx context.Context, client *bridge.Client) error {
		if _, err := client.PauseRecording(ctx); err != nil {
			return rpcError(err)
		}
		st, err := client.Status(ctx)
		if err != nil {
			return rpcError(err)
		}
		fmt.Fprintln(r.Stdout, st.State)
		return nil
	})
}

// Decibel prints the current average input level.
func (r Runner) Decibel(cmd *cobra.Command, opts cli.Options) error {
	return r.withClient(cmd, opts, func(ctx context.Context, client *bridge.Client) error {
		db, err := client.GetDecibel(ctx)
		if err != nil {
			return rpcError(err)
		}
		fmt.Fprintf(r.Stdout, "%.2f\n", db)
		return nil
	})
}

// Permission checks record permission and prints the cached state.
func (r Runner) Permission(cmd *cobra.Command, opts cli.Options) error {
	return r.withClient(cmd, opts, func(ctx context.Context, client *bridge.Client) error {
		if _, err := client.CheckHasPermission(ctx); err != nil {
			return rpcError(err)
		}
		st, err := client.Status(ctx)
		if err != nil {
			return rpcError(err)
		}
		fmt.Fprintln(r.Stdout, st.Permission)
		return nil
	})
}

// Status prints the owner's state, or idle when no owner is running.
func (r Runner) Status(cmd *cobra.Command, opts cli.Options) error {
	err := r.withClient(cmd, opts, func(ctx context.Context, client *bridge.Client) error {
		st, err := client.Status(ctx)
		if err != nil {
			return rpcError(err)
		}
		if st.RecordingID == "" {
			if st.State == "" {
				st.State = string(fsm.StateIdle)
			}
			fmt.Fprintln(r.Stdout, st.State)
			return nil
		}
		fmt.Fprintf(r.Stdout, "%s id=%s | path=%s | codec=%s | sample_rate=%d | permission=%s\n",
			st.State, st.RecordingID, st.Path, st.Codec, st.SampleRate, st.Permission)
		return nil
	})
	if errors.Is(err, errNoOwner) {
		fmt.Fprintln(r.Stdout, fsm.StateIdle)
		return nil
	}
	return err
}

// Devices lists Pulse input sources.
func (r Runner) Devices(cmd *cobra.Command, opts cli.Options) error {
	rt, err := r.setup(cmd, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	devices, err := audio.ListDevices(cmd.Context())
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return audio.ErrNoDevices
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s | bluetooth=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
			yesNo(device.Bluetooth),
		)
	}
	return nil
}

// Doctor prints environment diagnostics and fails when any check fails.
func (r Runner) Doctor(cmd *cobra.Command, opts cli.Options) error {
	rt, err := r.setup(cmd, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	report := doctor.Run(cmd.Context(), rt.loaded)
	fmt.Fprintln(r.Stdout, report.String())
	if !report.OK() {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// withClient loads config, connects to the owner and runs fn.
func (r Runner) withClient(cmd *cobra.Command, opts cli.Options, fn func(context.Context, *bridge.Client) error) error {
	rt, err := r.setup(cmd, opts)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.loaded.Config

	socketPath, err := bridge.ResolveSocketPath(cfg.Bridge.Socket)
	if err != nil {
		return err
	}
	if _, err := os.Stat(socketPath); errors.Is(err, os.ErrNotExist) {
		return errNoOwner
	}

	ctx := cmd.Context()
	client, err := bridge.Dial(ctx, socketPath, time.Duration(cfg.Bridge.RequestTimeoutMS)*time.Millisecond)
	if err != nil {
		rt.logger.Debug("owner dial failed", "socket", socketPath, "error", err.Error())
		return errNoOwner
	}
	defer client.Close()

	if err := fn(ctx, client); err != nil {
		rt.logger.Error("command failed", "command", cmd.Name(), "error", err.Error())
		return err
	}
	return nil
}

// rpcError strips transport framing so hosts see the service message.
func rpcError(err error) error {
	if st, ok := status.FromError(err); ok {
		return errors.New(st.Message())
	}
	return err
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
