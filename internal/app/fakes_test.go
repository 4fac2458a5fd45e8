package app

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/rbright/waveform/internal/recorder"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type appPlatform struct {
	mu          sync.Mutex
	activateErr error
	settings    []recorder.Settings
}

func (p *appPlatform) ActivateSession(context.Context, recorder.AudioSessionOptions) error {
	return p.activateErr
}

func (p *appPlatform) NewRecorder(_ context.Context, _ string, settings recorder.Settings) (recorder.Recorder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = append(p.settings, settings)
	return &appRecorder{}, nil
}

func (p *appPlatform) RecordPermission(context.Context) recorder.Permission {
	return recorder.PermissionGranted
}

func (p *appPlatform) RequestRecordPermission(context.Context) bool {
	return true
}

func (p *appPlatform) lastSettings() recorder.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.settings) == 0 {
		return recorder.Settings{}
	}
	return p.settings[len(p.settings)-1]
}

type appRecorder struct{}

func (*appRecorder) Record() error            { return nil }
func (*appRecorder) Pause() error             { return nil }
func (*appRecorder) Stop() error              { return nil }
func (*appRecorder) UpdateMeters()            {}
func (*appRecorder) AveragePower(int) float64 { return -12.5 }
func (*appRecorder) PeakPower(int) float64    { return -3 }
