package recorder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type fakeRecorder struct {
	recordErr error
	stopErr   error
	pauseErr  error
	power     float64
	peak      float64

	records      atomic.Int32
	pauses       atomic.Int32
	stops        atomic.Int32
	meterUpdates atomic.Int32
}

func (f *fakeRecorder) Record() error {
	f.records.Add(1)
	return f.recordErr
}

func (f *fakeRecorder) Pause() error {
	f.pauses.Add(1)
	return f.pauseErr
}

func (f *fakeRecorder) Stop() error {
	f.stops.Add(1)
	return f.stopErr
}

func (f *fakeRecorder) UpdateMeters() { f.meterUpdates.Add(1) }

func (f *fakeRecorder) AveragePower(int) float64 { return f.power }

func (f *fakeRecorder) PeakPower(int) float64 { return f.peak }

type fakePlatform struct {
	activateErr error
	recorderErr error
	nextRecord  func() *fakeRecorder

	status   Permission
	allow    bool
	release  chan struct{}
	requests atomic.Int32

	mu          sync.Mutex
	activations []AudioSessionOptions
	paths       []string
	settings    []Settings
	recorders   []*fakeRecorder
}

func (f *fakePlatform) ActivateSession(_ context.Context, opts AudioSessionOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activations = append(f.activations, opts)
	return f.activateErr
}

func (f *fakePlatform) NewRecorder(_ context.Context, path string, settings Settings) (Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.settings = append(f.settings, settings)
	if f.recorderErr != nil {
		return nil, f.recorderErr
	}
	rec := &fakeRecorder{}
	if f.nextRecord != nil {
		rec = f.nextRecord()
	}
	f.recorders = append(f.recorders, rec)
	return rec, nil
}

func (f *fakePlatform) RecordPermission(context.Context) Permission {
	return f.status
}

func (f *fakePlatform) RequestRecordPermission(ctx context.Context) bool {
	f.requests.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return false
		}
	}
	return f.allow
}

func (f *fakePlatform) lastRecorder() *fakeRecorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recorders) == 0 {
		return nil
	}
	return f.recorders[len(f.recorders)-1]
}

func (f *fakePlatform) lastSettings() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings[len(f.settings)-1]
}

type fakeCues struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (f *fakeCues) Started(context.Context) { f.started.Add(1) }
func (f *fakeCues) Stopped(context.Context) { f.stopped.Add(1) }

var errBoom = errors.New("boom")
