// Package doctor runs runtime readiness diagnostics for config, tools, audio, and the owner socket.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rbright/waveform/internal/audio"
	"github.com/rbright/waveform/internal/bridge"
	"github.com/rbright/waveform/internal/config"
	"github.com/rbright/waveform/internal/encode"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	if strings.TrimSpace(cfg.Config.Bridge.Socket) == "" {
		checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
			return strings.TrimSpace(v) != ""
		}, "runtime dir is set", "XDG_RUNTIME_DIR is empty and bridge.socket is unset"))
	}

	ffmpeg := cfg.Config.Recording.FFmpegPath
	if strings.TrimSpace(ffmpeg) == "" {
		ffmpeg = encode.DefaultBinary
	}
	binCheck := checkBinary(ffmpeg, "encoder available")
	checks = append(checks, binCheck)
	if binCheck.Pass {
		checks = append(checks, checkEncoders(ctx, ffmpeg))
	}

	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	checks = append(checks, checkOwner(ctx, cfg.Config))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkEncoders lists ffmpeg encoders and reports which codecs are usable.
// Only the default codec is required.
func checkEncoders(ctx context.Context, ffmpeg string) Check {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	available, err := encode.ListEncoders(ctx, ffmpeg)
	if err != nil {
		return Check{Name: "ffmpeg.encoders", Pass: false, Message: err.Error()}
	}
	return encoderCheck(available)
}

func encoderCheck(available map[string]bool) Check {
	var missing []string
	for _, codec := range encode.All() {
		if !available[codec.Encoder] {
			missing = append(missing, fmt.Sprintf("%s (%s)", codec.Name, codec.Encoder))
		}
	}
	sort.Strings(missing)

	defaultCodec := encode.Lookup(encode.CodeAAC)
	if !available[defaultCodec.Encoder] {
		return Check{Name: "ffmpeg.encoders", Pass: false, Message: fmt.Sprintf("default encoder %q missing", defaultCodec.Encoder)}
	}
	if len(missing) > 0 {
		return Check{Name: "ffmpeg.encoders", Pass: true, Message: "unavailable: " + strings.Join(missing, ", ")}
	}
	return Check{Name: "ffmpeg.encoders", Pass: true, Message: "all codecs available"}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, audio.Preference{
		Input:          cfg.Audio.Input,
		Fallback:       cfg.Audio.Fallback,
		AllowBluetooth: cfg.Audio.AllowBluetooth,
	})
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkOwner reports whether an owner process answers on the socket. A
// missing owner is not a failure.
func checkOwner(ctx context.Context, cfg config.Config) Check {
	path, err := bridge.ResolveSocketPath(cfg.Bridge.Socket)
	if err != nil {
		return Check{Name: "bridge.socket", Pass: false, Message: err.Error()}
	}
	alive, err := bridge.Probe(ctx, path, time.Duration(cfg.Bridge.RequestTimeoutMS)*time.Millisecond)
	switch {
	case err != nil:
		return Check{Name: "bridge.socket", Pass: false, Message: err.Error()}
	case alive:
		return Check{Name: "bridge.socket", Pass: true, Message: fmt.Sprintf("owner running at %s", path)}
	default:
		return Check{Name: "bridge.socket", Pass: true, Message: fmt.Sprintf("no owner at %s", path)}
	}
}
