// Package recorder owns the recording session: one platform recorder at a
// time, the output path it writes, and the cached record permission.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/waveform/internal/audio"
	"github.com/rbright/waveform/internal/encode"
	"github.com/rbright/waveform/internal/fsm"
)

const (
	// DefaultFileNameFormat names synthesized recordings when the host sends no pattern.
	DefaultFileNameFormat = "yyyy-MM-dd-HH-mm-ss"

	defaultExtension = ".aac"
)

// ErrStartFailed is the only failure surfaced to hosts.
var ErrStartFailed = errors.New("Failed to start recording")

// StartOptions are the host arguments to Start. Zero values mean "not provided".
type StartOptions struct {
	Path           string
	Encoder        int
	SampleRate     int
	FileNameFormat string
}

// Options tune session defaults.
type Options struct {
	TempDir               string
	DefaultSampleRate     int
	DefaultFileNameFormat string
	Quality               encode.Quality
	// AwaitPermission returns the outcome of a permission request triggered by
	// CheckPermission instead of the value cached before the request.
	AwaitPermission bool
	Now             func() time.Time
}

// Status is a point-in-time view of the session.
type Status struct {
	State       fsm.State
	Path        string
	RecordingID string
	StartedAt   time.Time
	Codec       encode.Codec
	SampleRate  int
	// PeakPower is the peak level of the last metering window, in dBFS.
	PeakPower  float64
	Permission Permission
}

// Session is the single recording session of the owner process.
type Session struct {
	logger   *slog.Logger
	platform Platform
	cues     Cues
	opts     Options

	mu          sync.Mutex
	state       fsm.State
	active      Recorder
	outputPath  string
	recordingID string
	startedAt   time.Time
	settings    Settings

	permMu     sync.Mutex
	permission Permission
	closed     bool
	requests   sync.WaitGroup
}

// New constructs a session with safe default fallbacks.
func New(logger *slog.Logger, platform Platform, cues Cues, opts Options) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cues == nil {
		cues = noopCues{}
	}
	if opts.DefaultSampleRate <= 0 {
		opts.DefaultSampleRate = audio.DefaultSampleRate
	}
	if strings.TrimSpace(opts.DefaultFileNameFormat) == "" {
		opts.DefaultFileNameFormat = DefaultFileNameFormat
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Session{
		logger:     logger,
		platform:   platform,
		cues:       cues,
		opts:       opts,
		state:      fsm.StateIdle,
		permission: PermissionUndetermined,
	}
}

// Start activates the audio session and begins recording to the resolved path.
//
// Starting while a recorder is active replaces it; the previous recorder is
// stopped first.
func (s *Session) Start(ctx context.Context, req StartOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settingsFor(req)
	path := strings.TrimSpace(req.Path)
	if path == "" {
		path = s.synthesizePath(req.FileNameFormat)
	}
	s.outputPath = path

	if err := s.platform.ActivateSession(ctx, RecordingAudioSession()); err != nil {
		return s.failStart("activate audio session", err)
	}

	if s.active != nil {
		s.logger.Warn("replacing active recorder", "recording_id", s.recordingID, "state", s.state)
		s.releaseActive()
	}

	rec, err := s.platform.NewRecorder(ctx, path, settings)
	if err != nil {
		return s.failStart("create recorder", err)
	}
	if err := rec.Record(); err != nil {
		_ = rec.Stop()
		return s.failStart("begin recording", err)
	}

	s.active = rec
	s.settings = settings
	s.recordingID = uuid.NewString()
	s.startedAt = s.opts.Now()
	s.transition(fsm.EventStart)

	s.logger.Info("recording started",
		"recording_id", s.recordingID,
		"path", path,
		"codec", settings.Codec.Name,
		"sample_rate", settings.SampleRate,
	)
	s.cues.Started(ctx)
	return nil
}

// Stop halts capture and returns the last output path, which may be stale or
// empty when nothing was recorded.
func (s *Session) Stop(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		id, started := s.recordingID, s.startedAt
		s.releaseActive()
		s.logger.Info("recording stopped",
			"recording_id", id,
			"path", s.outputPath,
			"duration_ms", s.opts.Now().Sub(started).Milliseconds(),
		)
		s.cues.Stopped(ctx)
	}
	s.transition(fsm.EventStop)
	return s.outputPath
}

// Pause pauses the active recorder. The reply is always false.
func (s *Session) Pause(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return false
	}
	if err := s.active.Pause(); err != nil {
		s.logger.Warn("pause recorder failed", "recording_id", s.recordingID, "error", err.Error())
		return false
	}
	s.transition(fsm.EventPause)
	return false
}

// Decibel refreshes meters and returns the average power of channel 0, or 0
// when nothing is recording.
func (s *Session) Decibel(_ context.Context) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return 0
	}
	s.active.UpdateMeters()
	return s.active.AveragePower(0)
}

// CheckPermission reads the platform record permission, requesting it when
// undetermined, and reports whether recording is allowed.
func (s *Session) CheckPermission(ctx context.Context) bool {
	switch s.platform.RecordPermission(ctx) {
	case PermissionUndetermined:
		if s.opts.AwaitPermission {
			s.setPermission(s.platform.RequestRecordPermission(ctx))
			break
		}
		if !s.beginRequest() {
			break
		}
		go func() {
			defer s.requests.Done()
			s.setPermission(s.platform.RequestRecordPermission(context.WithoutCancel(ctx)))
		}()
	case PermissionGranted:
		s.setPermission(true)
	default:
		s.setPermission(false)
	}
	return s.Permission() == PermissionGranted
}

// Permission returns the cached permission state.
func (s *Session) Permission() Permission {
	s.permMu.Lock()
	defer s.permMu.Unlock()
	return s.permission
}

// beginRequest registers a background permission request unless the session
// is closed.
func (s *Session) beginRequest() bool {
	s.permMu.Lock()
	defer s.permMu.Unlock()
	if s.closed {
		return false
	}
	s.requests.Add(1)
	return true
}

func (s *Session) setPermission(allowed bool) {
	s.permMu.Lock()
	defer s.permMu.Unlock()
	if allowed {
		s.permission = PermissionGranted
		return
	}
	s.permission = PermissionDenied
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:      s.state,
		Path:       s.outputPath,
		Permission: s.Permission(),
	}
	if s.active != nil {
		st.RecordingID = s.recordingID
		st.StartedAt = s.startedAt
		st.Codec = s.settings.Codec
		st.SampleRate = s.settings.SampleRate
		st.PeakPower = s.active.PeakPower(0)
	}
	return st
}

// Close stops any active recorder and waits for background permission requests.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.active != nil {
		s.logger.Info("stopping recorder on shutdown", "recording_id", s.recordingID)
		s.releaseActive()
		s.transition(fsm.EventStop)
	}
	s.mu.Unlock()

	s.permMu.Lock()
	s.closed = true
	s.permMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.requests.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Session) settingsFor(req StartOptions) Settings {
	rate := req.SampleRate
	if rate <= 0 {
		rate = s.opts.DefaultSampleRate
	}
	return Settings{
		Codec:           MapEncoder(req.Encoder),
		SampleRate:      rate,
		Channels:        1,
		Quality:         s.opts.Quality,
		MeteringEnabled: true,
	}
}

func (s *Session) synthesizePath(format string) string {
	if strings.TrimSpace(format) == "" {
		format = s.opts.DefaultFileNameFormat
	}
	dir := s.opts.TempDir
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}

	now := s.opts.Now()
	name := FormatDate(now, format)
	if !isFileName(name) {
		s.logger.Warn("file name format does not produce a single file name; using default",
			"format", format,
			"name", name,
		)
		name = FormatDate(now, s.opts.DefaultFileNameFormat)
		if !isFileName(name) {
			name = FormatDate(now, DefaultFileNameFormat)
		}
	}
	return filepath.Join(dir, name+defaultExtension)
}

// isFileName reports whether name is one path element that stays in its
// directory.
func isFileName(name string) bool {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		return false
	}
	return filepath.Base(name) == name
}

// releaseActive stops and drops the active recorder. Callers hold s.mu.
func (s *Session) releaseActive() {
	if err := s.active.Stop(); err != nil {
		s.logger.Error("stop recorder failed", "recording_id", s.recordingID, "error", err.Error())
	}
	s.active = nil
	s.recordingID = ""
	s.startedAt = time.Time{}
}

// failStart logs the cause and reports ErrStartFailed. Callers hold s.mu.
func (s *Session) failStart(stage string, err error) error {
	s.logger.Error("start recording failed", "stage", stage, "path", s.outputPath, "error", err.Error())
	if s.active == nil {
		s.transition(fsm.EventFail)
		s.transition(fsm.EventReset)
	}
	return fmt.Errorf("%w: %s: %v", ErrStartFailed, stage, err)
}

// transition applies one FSM event. Callers hold s.mu.
func (s *Session) transition(event fsm.Event) {
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		s.logger.Debug("ignored state transition", "state", s.state, "event", event, "error", err.Error())
		return
	}
	s.state = next
}
