package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEmptyContentKeepsDefaults(t *testing.T) {
	cfg, warnings, err := Parse("", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseUnknownKeysBecomeWarnings(t *testing.T) {
	content := `
[audio]
input = "default"
gain = 3

[mystery]
enabled = true
`
	_, warnings, err := Parse(content, Default())
	require.NoError(t, err)

	messages := make([]string, 0, len(warnings))
	for _, w := range warnings {
		messages = append(messages, w.Message)
	}
	require.Contains(t, messages, `unknown key "audio.gain"`)
	require.Contains(t, messages, `unknown key "mystery.enabled"`)
}

func TestParseAllSections(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	content := `
[recording]
sample_rate = 48000
file_name_format = "'take'-yyyyMMdd"
temp_dir = "~/recordings"
ffmpeg_path = " /usr/bin/ffmpeg "
quality = "max"

[permission]
await_request = false
request_timeout_ms = 1500

[bridge]
socket = "/tmp/waveform.sock"
request_timeout_ms = 2000

[log]
level = "Warn"
max_size_mb = 5
max_backups = 0

[debug]
audio_dump = true
`
	cfg, warnings, err := Parse(content, Default())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "debug.audio_dump")

	require.Equal(t, 48000, cfg.Recording.SampleRate)
	require.Equal(t, "'take'-yyyyMMdd", cfg.Recording.FileNameFormat)
	require.Equal(t, filepath.Join(home, "recordings"), cfg.Recording.TempDir)
	require.Equal(t, "/usr/bin/ffmpeg", cfg.Recording.FFmpegPath)
	require.Equal(t, "max", cfg.Recording.Quality)
	require.False(t, cfg.Permission.AwaitRequest)
	require.Equal(t, 1500, cfg.Permission.RequestTimeoutMS)
	require.Equal(t, "/tmp/waveform.sock", cfg.Bridge.Socket)
	require.Equal(t, 2000, cfg.Bridge.RequestTimeoutMS)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, 5, cfg.Log.MaxSizeMB)
	require.Equal(t, 0, cfg.Log.MaxBackups)
	require.True(t, cfg.Debug.AudioDump)
}

func TestParseTypeMismatchFails(t *testing.T) {
	_, _, err := Parse("[recording]\nsample_rate = \"fast\"\n", Default())
	require.Error(t, err)
}

func TestExpandUserPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	require.Equal(t, "", expandUserPath(" "))
	require.Equal(t, "/var/tmp", expandUserPath("/var/tmp"))
	require.Equal(t, home, expandUserPath("~"))
	require.Equal(t, filepath.Join(home, "a/b"), expandUserPath("~/a/b"))
}
