package encode

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestArgsForAAC(t *testing.T) {
	args := Args(Spec{Codec: Lookup(CodeAAC), SampleRate: 16000, Channels: 1, Quality: QualityHigh, Path: "/tmp/out.aac"})
	require.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", "16000", "-ac", "1", "-i", "pipe:0",
		"-c:a", "aac",
		"-b:a", "64k",
		"-ac", "1",
		"-f", "adts",
		"-y", "/tmp/out.aac",
	}, args)
}

func TestArgsAddsProfileAndResampleWhenRequired(t *testing.T) {
	args := Args(Spec{Codec: Lookup(CodeAACHE), SampleRate: 44100, Quality: QualityHigh, Path: "out"})
	require.Contains(t, args, "aac_he")
	require.Equal(t, 1, countOf(args, "-ar"))

	args = Args(Spec{Codec: Lookup(CodeOpus), SampleRate: 44100, Quality: QualityHigh, Path: "out"})
	require.Equal(t, 2, countOf(args, "-ar"))
	require.Contains(t, args, "48000")
	require.Contains(t, args, "ogg")
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	_, err := Start("ffmpeg", Spec{Codec: Lookup(CodeAAC), Path: "out"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid sample rate")

	_, err = Start("ffmpeg", Spec{Codec: Lookup(CodeAAC), SampleRate: 16000, Path: "  "})
	require.Error(t, err)
	require.Contains(t, err.Error(), "output path is empty")
}

func TestStartMissingBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.aac")
	_, err := Start("definitely-missing-ffmpeg-binary", Spec{Codec: Lookup(CodeAAC), SampleRate: 16000, Path: path})
	require.Error(t, err)
	require.Contains(t, err.Error(), "start encoder")

	_, statErr := os.Stat(filepath.Dir(path))
	require.NoError(t, statErr)
}

func TestEncoderPipesPCMToProcess(t *testing.T) {
	t.Setenv("GO_WANT_ENCODER_HELPER", "1")
	path := filepath.Join(t.TempDir(), "out.raw")

	enc, err := start(os.Args[0], []string{"-test.run=TestEncoderHelperProcess", "--", path}, path)
	require.NoError(t, err)
	require.Equal(t, path, enc.Path())

	_, err = enc.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = enc.Write([]byte{5, 6})
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close())

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, written)
}

func TestEncoderCloseSurfacesStderr(t *testing.T) {
	t.Setenv("GO_WANT_ENCODER_HELPER", "fail")
	path := filepath.Join(t.TempDir(), "out.raw")

	enc, err := start(os.Args[0], []string{"-test.run=TestEncoderHelperProcess", "--", path}, path)
	require.NoError(t, err)

	err = enc.Close()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown encoder")
}

func TestStartFailsWhenEncoderExitsImmediately(t *testing.T) {
	restore := startupGrace
	startupGrace = 10 * time.Second
	t.Cleanup(func() { startupGrace = restore })

	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	body := "#!/bin/sh\necho \"Unknown encoder 'libfdk_aac'\" >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	path := filepath.Join(t.TempDir(), "out.aac")
	started := time.Now()
	_, err := Start(script, Spec{Codec: Lookup(CodeAACELD), SampleRate: 16000, Path: path})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exited during startup")
	require.Contains(t, err.Error(), "Unknown encoder 'libfdk_aac'")
	require.Less(t, time.Since(started), startupGrace)
}

func TestEncoderHelperProcess(t *testing.T) {
	mode := os.Getenv("GO_WANT_ENCODER_HELPER")
	if mode == "" {
		return
	}
	if mode == "fail" {
		_, _ = io.Copy(io.Discard, os.Stdin)
		_, _ = os.Stderr.WriteString("unknown encoder 'libnothing'\n")
		os.Exit(1)
	}

	path := os.Args[len(os.Args)-1]
	out, err := os.Create(path)
	if err != nil {
		os.Exit(2)
	}
	if _, err := io.Copy(out, os.Stdin); err != nil {
		os.Exit(3)
	}
	_ = out.Close()
	os.Exit(0)
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	buf := &tailBuffer{limit: 4}
	_, _ = buf.Write([]byte("abc"))
	_, _ = buf.Write([]byte("defg"))
	require.Equal(t, "defg", buf.String())
}

func countOf(items []string, target string) int {
	n := 0
	for _, item := range items {
		if item == target {
			n++
		}
	}
	return n
}
