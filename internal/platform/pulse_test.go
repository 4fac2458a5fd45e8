package platform

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/waveform/internal/audio"
	"github.com/rbright/waveform/internal/encode"
	"github.com/rbright/waveform/internal/recorder"
)

type fakeCapture struct {
	chunks chan []byte

	mu      sync.Mutex
	starts  int
	pauses  int
	stops   int
	stopped bool
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{chunks: make(chan []byte, 16)}
}

func (f *fakeCapture) Chunks() <-chan []byte { return f.chunks }

func (f *fakeCapture) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
}

func (f *fakeCapture) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if !f.stopped {
		f.stopped = true
		close(f.chunks)
	}
	return nil
}

type fakeEncoder struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writeErr error
	closeErr error
	closed   int
}

func (f *fakeEncoder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.buf.Write(p)
}

func (f *fakeEncoder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

type harness struct {
	platform *Pulse
	devices  []audio.Device
	listErr  error
	capture  *fakeCapture
	encoder  *fakeEncoder
	spec     encode.Spec
	opened   audio.CaptureOptions
	device   audio.Device

	encoders    map[string]bool
	encodersErr error
	listCalls   int
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		devices: []audio.Device{{ID: "alsa_input.usb", Available: true, Default: true}},
		capture: newFakeCapture(),
		encoder: &fakeEncoder{},
	}
	p := New(nil, opts)
	p.listDevices = func(context.Context) ([]audio.Device, error) {
		return h.devices, h.listErr
	}
	p.openCapture = func(_ context.Context, dev audio.Device, co audio.CaptureOptions) (pcmSource, error) {
		h.device = dev
		h.opened = co
		return h.capture, nil
	}
	p.startEncoder = func(_ string, spec encode.Spec) (pcmSink, error) {
		h.spec = spec
		return h.encoder, nil
	}
	p.listEncoders = func(context.Context, string) (map[string]bool, error) {
		h.listCalls++
		if h.encodersErr != nil {
			return nil, h.encodersErr
		}
		if h.encoders != nil {
			return h.encoders, nil
		}
		available := map[string]bool{}
		for _, codec := range encode.All() {
			available[codec.Encoder] = true
		}
		return available, nil
	}
	h.platform = p
	return h
}

func pcm(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func testSettings() recorder.Settings {
	return recorder.Settings{
		Codec:           encode.Lookup(encode.CodeOpus),
		SampleRate:      16000,
		Channels:        1,
		Quality:         encode.QualityHigh,
		MeteringEnabled: true,
	}
}

func TestNewRecorderRequiresActiveSession(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.platform.NewRecorder(context.Background(), "/tmp/a.ogg", testSettings())
	require.ErrorContains(t, err, "audio session is not active")
}

func TestActivateSessionRejectsOtherCategories(t *testing.T) {
	h := newHarness(t, Options{})
	err := h.platform.ActivateSession(context.Background(), recorder.AudioSessionOptions{Category: "playback"})
	require.ErrorContains(t, err, "unsupported audio session category")
}

func TestActivateSessionHonoursBluetoothPreference(t *testing.T) {
	h := newHarness(t, Options{Preference: audio.Preference{Input: "default"}})
	h.devices = []audio.Device{
		{ID: "bluez_input.headset", Available: true, Default: true, Bluetooth: true},
		{ID: "alsa_input.usb", Available: true},
	}

	err := h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession())
	require.Error(t, err)

	h.platform.opts.Preference.AllowBluetooth = true
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))

	_, err = h.platform.NewRecorder(context.Background(), "/tmp/a.ogg", testSettings())
	require.NoError(t, err)
	require.Equal(t, "bluez_input.headset", h.device.ID)
}

func TestActivateSessionPropagatesListError(t *testing.T) {
	h := newHarness(t, Options{})
	h.listErr = errors.New("connect pulse server: refused")
	require.ErrorContains(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()), "refused")
}

func TestRecorderPumpsChunksToEncoderAndMeter(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))

	rec, err := h.platform.NewRecorder(context.Background(), "/data/take.ogg", testSettings())
	require.NoError(t, err)
	require.Equal(t, 16000, h.opened.SampleRate)
	require.Equal(t, "/data/take.ogg", h.spec.Path)
	require.Equal(t, "opus", h.spec.Codec.Name)
	require.Equal(t, encode.QualityHigh, h.spec.Quality)

	rec.UpdateMeters()
	require.Equal(t, audio.MinPower, rec.AveragePower(0))

	require.NoError(t, rec.Record())
	h.capture.chunks <- pcm(16384, -16384)
	h.capture.chunks <- pcm(16384, -16384)

	require.NoError(t, rec.Stop())
	require.Equal(t, 1, h.capture.starts)
	require.Equal(t, 1, h.encoder.closed)
	require.Equal(t, 8, h.encoder.buf.Len())

	rec.UpdateMeters()
	require.InDelta(t, -6.02, rec.AveragePower(0), 0.01)
	require.InDelta(t, -6.02, rec.PeakPower(0), 0.01)
	require.Equal(t, audio.MinPower, rec.AveragePower(1))
}

func TestRecorderPauseAndResume(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))
	rec, err := h.platform.NewRecorder(context.Background(), "/data/take.ogg", testSettings())
	require.NoError(t, err)

	require.NoError(t, rec.Record())
	require.NoError(t, rec.Pause())
	require.NoError(t, rec.Record())
	require.NoError(t, rec.Stop())

	require.Equal(t, 2, h.capture.starts)
	require.Equal(t, 1, h.capture.pauses)
	require.ErrorIs(t, rec.Record(), errRecorderStopped)
	require.ErrorIs(t, rec.Pause(), errRecorderStopped)
	require.NoError(t, rec.Stop())
	require.Equal(t, 1, h.encoder.closed)
}

func TestRecorderStopWithoutRecordClosesEncoder(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))
	rec, err := h.platform.NewRecorder(context.Background(), "/data/take.ogg", testSettings())
	require.NoError(t, err)

	require.NoError(t, rec.Stop())
	require.Equal(t, 1, h.capture.stops)
	require.Equal(t, 1, h.encoder.closed)
}

func TestRecorderReportsEncoderFailures(t *testing.T) {
	h := newHarness(t, Options{})
	h.encoder.writeErr = errors.New("broken pipe")
	h.encoder.closeErr = errors.New("encoder exited")
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))
	rec, err := h.platform.NewRecorder(context.Background(), "/data/take.ogg", testSettings())
	require.NoError(t, err)

	require.NoError(t, rec.Record())
	h.capture.chunks <- pcm(1, 2)
	h.capture.chunks <- pcm(3, 4)

	err = rec.Stop()
	require.ErrorContains(t, err, "broken pipe")
	require.ErrorContains(t, err, "encoder exited")
}

func TestRecorderWithoutMetering(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))
	settings := testSettings()
	settings.MeteringEnabled = false
	rec, err := h.platform.NewRecorder(context.Background(), "/data/take.ogg", settings)
	require.NoError(t, err)

	require.NoError(t, rec.Record())
	h.capture.chunks <- pcm(16384)
	require.NoError(t, rec.Stop())

	rec.UpdateMeters()
	require.Equal(t, audio.MinPower, rec.AveragePower(0))
}

func TestRecorderWritesAudioDump(t *testing.T) {
	dumpDir := t.TempDir()
	now := time.Date(2026, time.March, 7, 9, 5, 3, 0, time.UTC)
	h := newHarness(t, Options{DumpDir: dumpDir, Now: func() time.Time { return now }})
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))
	rec, err := h.platform.NewRecorder(context.Background(), "/data/take.ogg", testSettings())
	require.NoError(t, err)

	require.NoError(t, rec.Record())
	h.capture.chunks <- pcm(1, -2, 300)
	require.NoError(t, rec.Stop())

	matches, err := filepath.Glob(filepath.Join(dumpDir, "audio-20260307-090503.000.wav"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestRecordPermission(t *testing.T) {
	h := newHarness(t, Options{})

	require.Equal(t, recorder.PermissionGranted, h.platform.RecordPermission(context.Background()))

	h.devices = []audio.Device{{ID: "alsa_input.usb", Available: true, Muted: true}}
	require.Equal(t, recorder.PermissionDenied, h.platform.RecordPermission(context.Background()))

	h.devices = nil
	require.Equal(t, recorder.PermissionDenied, h.platform.RecordPermission(context.Background()))

	h.devices = []audio.Device{{ID: "bluez_input.headset", Available: true, Bluetooth: true}}
	require.Equal(t, recorder.PermissionDenied, h.platform.RecordPermission(context.Background()))
	h.platform.opts.Preference.AllowBluetooth = true
	require.Equal(t, recorder.PermissionGranted, h.platform.RecordPermission(context.Background()))

	h.listErr = errors.New("connect pulse server: refused")
	require.Equal(t, recorder.PermissionUndetermined, h.platform.RecordPermission(context.Background()))
}

func TestRequestRecordPermissionResolves(t *testing.T) {
	h := newHarness(t, Options{PermissionPoll: time.Millisecond})
	require.True(t, h.platform.RequestRecordPermission(context.Background()))

	h.devices = nil
	require.False(t, h.platform.RequestRecordPermission(context.Background()))
}

func TestRequestRecordPermissionTimesOut(t *testing.T) {
	h := newHarness(t, Options{PermissionPoll: time.Millisecond, PermissionTimeout: 20 * time.Millisecond})
	h.listErr = errors.New("connect pulse server: refused")

	started := time.Now()
	require.False(t, h.platform.RequestRecordPermission(context.Background()))
	require.Less(t, time.Since(started), time.Second)
}

func TestNewRecorderRejectsUnavailableEncoder(t *testing.T) {
	h := newHarness(t, Options{})
	h.encoders = map[string]bool{"aac": true}
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))

	rec, err := h.platform.NewRecorder(context.Background(), "/tmp/a.aac", recorder.Settings{
		Codec:      encode.Lookup(encode.CodeAACELD),
		SampleRate: 16000,
		Channels:   1,
	})
	require.Nil(t, rec)
	require.ErrorIs(t, err, errEncoderUnavailable)
	require.Contains(t, err.Error(), "libfdk_aac")
	require.Empty(t, h.opened.MediaName)
	require.Empty(t, h.spec.Path)
}

func TestNewRecorderReadsEncoderListOnce(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))

	for range 2 {
		h.capture = newFakeCapture()
		rec, err := h.platform.NewRecorder(context.Background(), "/tmp/a.ogg", testSettings())
		require.NoError(t, err)
		require.NoError(t, rec.Stop())
	}
	require.Equal(t, 1, h.listCalls)
}

func TestNewRecorderFailsWhenEncoderListFails(t *testing.T) {
	h := newHarness(t, Options{})
	h.encodersErr = errors.New("ffmpeg missing")
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))

	_, err := h.platform.NewRecorder(context.Background(), "/tmp/a.ogg", testSettings())
	require.ErrorContains(t, err, "check encoders")

	h.encodersErr = nil
	_, err = h.platform.NewRecorder(context.Background(), "/tmp/a.ogg", testSettings())
	require.NoError(t, err)
	require.Equal(t, 2, h.listCalls)
}

func TestNewRecorderFailsWhenEncoderProcessExits(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	body := "#!/bin/sh\necho \"Unknown encoder 'libopus'\" >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	h := newHarness(t, Options{FFmpegPath: script})
	h.platform.startEncoder = func(binary string, spec encode.Spec) (pcmSink, error) {
		return encode.Start(binary, spec)
	}
	require.NoError(t, h.platform.ActivateSession(context.Background(), recorder.RecordingAudioSession()))

	path := filepath.Join(t.TempDir(), "take.ogg")
	rec, err := h.platform.NewRecorder(context.Background(), path, testSettings())
	require.Nil(t, rec)
	require.ErrorContains(t, err, "Unknown encoder")
	require.Equal(t, 1, h.capture.stops)

	_, statErr := os.Stat(path)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}
