// Package platform implements recorder.Platform on PulseAudio capture and an
// ffmpeg encoder process.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbright/waveform/internal/audio"
	"github.com/rbright/waveform/internal/encode"
	"github.com/rbright/waveform/internal/recorder"
)

const (
	defaultPermissionTimeout = 3 * time.Second
	defaultPermissionPoll    = 250 * time.Millisecond
	encoderListTimeout       = 5 * time.Second
)

var errEncoderUnavailable = errors.New("encoder unavailable")

// Options configures the Pulse platform.
type Options struct {
	Preference audio.Preference
	FFmpegPath string
	// DumpDir receives a WAV copy of every capture when set.
	DumpDir           string
	PermissionTimeout time.Duration
	PermissionPoll    time.Duration
	Now               func() time.Time
}

type pcmSource interface {
	Chunks() <-chan []byte
	Start()
	Pause()
	Stop() error
}

type pcmSink interface {
	Write([]byte) (int, error)
	Close() error
}

// Pulse is the Linux audio platform.
type Pulse struct {
	logger *slog.Logger
	opts   Options

	listDevices  func(context.Context) ([]audio.Device, error)
	openCapture  func(context.Context, audio.Device, audio.CaptureOptions) (pcmSource, error)
	startEncoder func(string, encode.Spec) (pcmSink, error)
	listEncoders func(context.Context, string) (map[string]bool, error)

	mu       sync.Mutex
	selected *audio.Device
	encoders map[string]bool
}

// New returns a platform bound to the local Pulse server.
func New(logger *slog.Logger, opts Options) *Pulse {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.PermissionTimeout <= 0 {
		opts.PermissionTimeout = defaultPermissionTimeout
	}
	if opts.PermissionPoll <= 0 {
		opts.PermissionPoll = defaultPermissionPoll
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pulse{
		logger:      logger,
		opts:        opts,
		listDevices: audio.ListDevices,
		openCapture: func(ctx context.Context, dev audio.Device, co audio.CaptureOptions) (pcmSource, error) {
			return audio.OpenCapture(ctx, dev, co)
		},
		startEncoder: func(binary string, spec encode.Spec) (pcmSink, error) {
			return encode.Start(binary, spec)
		},
		listEncoders: encode.ListEncoders,
	}
}

// ActivateSession resolves the capture device for the next recorder.
func (p *Pulse) ActivateSession(ctx context.Context, opts recorder.AudioSessionOptions) error {
	if opts.Category != recorder.CategoryPlayAndRecord {
		return fmt.Errorf("unsupported audio session category %q", opts.Category)
	}

	devices, err := p.listDevices(ctx)
	if err != nil {
		return err
	}

	pref := p.opts.Preference
	pref.AllowBluetooth = pref.AllowBluetooth && opts.AllowBluetooth
	selection, err := audio.SelectFromList(devices, pref)
	if err != nil {
		return fmt.Errorf("select input device: %w", err)
	}
	if selection.Warning != "" {
		p.logger.Warn(selection.Warning)
	}

	p.mu.Lock()
	p.selected = &selection.Device
	p.mu.Unlock()

	p.logger.Debug("audio session active", "device", selection.Device.ID, "fallback", selection.Fallback)
	return nil
}

// NewRecorder opens a corked capture and the encoder for path.
func (p *Pulse) NewRecorder(ctx context.Context, path string, settings recorder.Settings) (recorder.Recorder, error) {
	p.mu.Lock()
	selected := p.selected
	p.mu.Unlock()
	if selected == nil {
		return nil, errors.New("audio session is not active")
	}
	if err := p.ensureEncoder(ctx, settings.Codec); err != nil {
		return nil, err
	}

	capture, err := p.openCapture(ctx, *selected, audio.CaptureOptions{
		SampleRate: settings.SampleRate,
		MediaName:  "waveform " + filepath.Base(path),
	})
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	encoder, err := p.startEncoder(p.opts.FFmpegPath, encode.Spec{
		Codec:      settings.Codec,
		SampleRate: settings.SampleRate,
		Channels:   settings.Channels,
		Quality:    settings.Quality,
		Path:       path,
	})
	if err != nil {
		_ = capture.Stop()
		return nil, err
	}

	rec := &pulseRecorder{
		logger:  p.logger.With("path", path),
		capture: capture,
		encoder: encoder,
	}
	if settings.MeteringEnabled {
		rec.meter = audio.NewMeter()
	}
	if dir := strings.TrimSpace(p.opts.DumpDir); dir != "" {
		dumpPath := filepath.Join(dir, "audio-"+p.opts.Now().Format("20060102-150405.000")+".wav")
		dump, derr := encode.CreateWAVDump(dumpPath, settings.SampleRate)
		if derr != nil {
			p.logger.Warn("audio dump disabled", "error", derr.Error())
		} else {
			rec.dump = dump
			p.logger.Debug("audio dump enabled", "dump_path", dumpPath)
		}
	}
	return rec, nil
}

// ensureEncoder fails when ffmpeg lacks the encoder codec needs. The encoder
// list is read once per platform.
func (p *Pulse) ensureEncoder(ctx context.Context, codec encode.Codec) error {
	p.mu.Lock()
	available := p.encoders
	p.mu.Unlock()

	if available == nil {
		listCtx, cancel := context.WithTimeout(ctx, encoderListTimeout)
		defer cancel()
		list, err := p.listEncoders(listCtx, p.opts.FFmpegPath)
		if err != nil {
			return fmt.Errorf("check encoders: %w", err)
		}
		p.mu.Lock()
		p.encoders = list
		p.mu.Unlock()
		available = list
	}

	if !available[codec.Encoder] {
		return fmt.Errorf("%w: %s needs ffmpeg encoder %q", errEncoderUnavailable, codec.Name, codec.Encoder)
	}
	return nil
}

// RecordPermission reports whether a usable input source exists. An
// unreachable server leaves the permission undetermined.
func (p *Pulse) RecordPermission(ctx context.Context) recorder.Permission {
	devices, err := p.listDevices(ctx)
	if err != nil {
		p.logger.Debug("record permission undetermined", "error", err.Error())
		return recorder.PermissionUndetermined
	}
	for _, dev := range devices {
		if dev.Bluetooth && !p.opts.Preference.AllowBluetooth {
			continue
		}
		if dev.Usable() {
			return recorder.PermissionGranted
		}
	}
	return recorder.PermissionDenied
}

// RequestRecordPermission polls until the permission resolves or the request
// times out. Only a grant returns true.
func (p *Pulse) RequestRecordPermission(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.opts.PermissionTimeout)
	defer cancel()

	ticker := time.NewTicker(p.opts.PermissionPoll)
	defer ticker.Stop()

	for {
		if perm := p.RecordPermission(ctx); perm != recorder.PermissionUndetermined {
			return perm == recorder.PermissionGranted
		}
		select {
		case <-ctx.Done():
			p.logger.Warn("record permission request timed out")
			return false
		case <-ticker.C:
		}
	}
}
