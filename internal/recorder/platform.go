package recorder

import (
	"context"
	"fmt"

	"github.com/rbright/waveform/internal/encode"
)

// Permission is the tri-state record permission.
type Permission int

const (
	PermissionUndetermined Permission = iota
	PermissionDenied
	PermissionGranted
)

func (p Permission) String() string {
	switch p {
	case PermissionUndetermined:
		return "undetermined"
	case PermissionDenied:
		return "denied"
	case PermissionGranted:
		return "granted"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

// Category selects how the audio session is shared with playback.
type Category string

const CategoryPlayAndRecord Category = "play_and_record"

// AudioSessionOptions configures platform audio-session activation.
type AudioSessionOptions struct {
	Category         Category
	DefaultToSpeaker bool
	AllowBluetooth   bool
}

// RecordingAudioSession is the activation used by every Start.
func RecordingAudioSession() AudioSessionOptions {
	return AudioSessionOptions{
		Category:         CategoryPlayAndRecord,
		DefaultToSpeaker: true,
		AllowBluetooth:   true,
	}
}

// Settings describes the file a recorder produces.
type Settings struct {
	Codec           encode.Codec
	SampleRate      int
	Channels        int
	Quality         encode.Quality
	MeteringEnabled bool
}

// Recorder is one platform recorder handle writing to a single file.
type Recorder interface {
	// Record starts capture, or resumes it after Pause.
	Record() error
	Pause() error
	// Stop ends capture and finalizes the file. The handle is unusable afterwards.
	Stop() error
	UpdateMeters()
	AveragePower(channel int) float64
	PeakPower(channel int) float64
}

// Platform is the OS audio facility the session delegates to.
type Platform interface {
	ActivateSession(context.Context, AudioSessionOptions) error
	NewRecorder(ctx context.Context, path string, settings Settings) (Recorder, error)
	RecordPermission(context.Context) Permission
	// RequestRecordPermission blocks until the request resolves.
	RequestRecordPermission(context.Context) bool
}

// Cues is the session-facing subset of audible feedback.
type Cues interface {
	Started(context.Context)
	Stopped(context.Context)
}

// noopCues preserves session flow when no cue player is wired.
type noopCues struct{}

func (noopCues) Started(context.Context) {}
func (noopCues) Stopped(context.Context) {}
