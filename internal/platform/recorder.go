package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/waveform/internal/audio"
	"github.com/rbright/waveform/internal/encode"
)

var errRecorderStopped = errors.New("recorder already stopped")

// pulseRecorder pumps capture chunks through the meter into the encoder.
type pulseRecorder struct {
	logger  *slog.Logger
	capture pcmSource
	encoder pcmSink
	meter   *audio.Meter
	dump    *encode.WAVDump

	mu       sync.Mutex
	started  bool
	stopped  bool
	pumpDone chan struct{}
	pumpErr  error
}

func (r *pulseRecorder) Record() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return errRecorderStopped
	}
	if !r.started {
		r.started = true
		r.pumpDone = make(chan struct{})
		go r.pump()
	}
	r.capture.Start()
	return nil
}

func (r *pulseRecorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return errRecorderStopped
	}
	r.capture.Pause()
	return nil
}

func (r *pulseRecorder) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	captureErr := r.capture.Stop()
	if started {
		<-r.pumpDone
	}

	errs := []error{captureErr, r.pumpErr}
	if err := r.encoder.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.dump != nil {
		if err := r.dump.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audio dump: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *pulseRecorder) UpdateMeters() {
	if r.meter != nil {
		r.meter.Update()
	}
}

func (r *pulseRecorder) AveragePower(channel int) float64 {
	if r.meter == nil || channel != 0 {
		return audio.MinPower
	}
	return r.meter.AveragePower()
}

func (r *pulseRecorder) PeakPower(channel int) float64 {
	if r.meter == nil || channel != 0 {
		return audio.MinPower
	}
	return r.meter.PeakPower()
}

// pump drains the capture until it closes. After an encoder failure chunks are
// still drained so the capture never blocks.
func (r *pulseRecorder) pump() {
	defer close(r.pumpDone)

	var writeErr error
	for chunk := range r.capture.Chunks() {
		if r.meter != nil {
			r.meter.Observe(chunk)
		}
		if r.dump != nil {
			if err := r.dump.Write(chunk); err != nil {
				r.logger.Warn("audio dump write failed", "error", err.Error())
				_ = r.dump.Close()
				r.dump = nil
			}
		}
		if writeErr != nil {
			continue
		}
		if _, err := r.encoder.Write(chunk); err != nil {
			writeErr = err
			r.logger.Error("encoder write failed", "error", err.Error())
		}
	}
	r.pumpErr = writeErr
}
