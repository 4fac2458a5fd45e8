package encode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBinary is the ffmpeg executable resolved from PATH.
const DefaultBinary = "ffmpeg"

// startupGrace is how long Start watches for ffmpeg rejecting its arguments.
var startupGrace = 250 * time.Millisecond

// Spec describes one encode job.
type Spec struct {
	Codec      Codec
	SampleRate int
	Channels   int
	Quality    Quality
	Path       string
}

// Args builds ffmpeg arguments that read s16le PCM on stdin and write spec.Path.
func Args(spec Spec) []string {
	channels := spec.Channels
	if channels <= 0 {
		channels = 1
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(spec.SampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", "pipe:0",
		"-c:a", spec.Codec.Encoder,
	}
	if spec.Codec.Profile != "" {
		args = append(args, "-profile:a", spec.Codec.Profile)
	}
	args = append(args, "-b:a", spec.Codec.Bitrate(spec.Quality))
	if out := spec.Codec.OutputSampleRate(spec.SampleRate); out != spec.SampleRate {
		args = append(args, "-ar", strconv.Itoa(out))
	}
	args = append(args,
		"-ac", strconv.Itoa(channels),
		"-f", spec.Codec.Muxer,
		"-y", spec.Path,
	)
	return args
}

// Encoder is one running ffmpeg process fed through stdin.
type Encoder struct {
	path   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer

	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

// Start launches binary (ffmpeg when empty) for spec.
func Start(binary string, spec Spec) (*Encoder, error) {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	if spec.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", spec.SampleRate)
	}
	if strings.TrimSpace(spec.Path) == "" {
		return nil, errors.New("output path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(spec.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return start(binary, Args(spec), spec.Path)
}

func start(binary string, args []string, path string) (*Encoder, error) {
	cmd := exec.Command(binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open encoder stdin: %w", err)
	}
	stderr := &tailBuffer{limit: 2048}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start encoder %q: %w", binary, err)
	}

	e := &Encoder{path: path, cmd: cmd, stdin: stdin, stderr: stderr, exited: make(chan struct{})}
	go func() {
		e.waitErr = cmd.Wait()
		close(e.exited)
	}()

	// ffmpeg exits right away on unknown encoders or bad options.
	timer := time.NewTimer(startupGrace)
	defer timer.Stop()
	select {
	case <-e.exited:
		_ = stdin.Close()
		return nil, e.exitError(fmt.Sprintf("encoder %q exited during startup", binary))
	case <-timer.C:
	}
	return e, nil
}

func (e *Encoder) exitError(prefix string) error {
	err := e.waitErr
	if err == nil {
		err = errors.New("no output written")
	}
	if tail := strings.TrimSpace(e.stderr.String()); tail != "" {
		return fmt.Errorf("%s: %w: %s", prefix, err, tail)
	}
	return fmt.Errorf("%s: %w", prefix, err)
}

// Path returns the output file written by the encoder.
func (e *Encoder) Path() string {
	return e.path
}

// Write forwards raw PCM to the encoder.
func (e *Encoder) Write(pcm []byte) (int, error) {
	n, err := e.stdin.Write(pcm)
	if err != nil {
		return n, fmt.Errorf("write encoder input: %w", err)
	}
	return n, nil
}

// Close ends the input stream and waits for ffmpeg to finalize the file.
func (e *Encoder) Close() error {
	e.closeOnce.Do(func() {
		_ = e.stdin.Close()
		<-e.exited
		if e.waitErr != nil {
			e.closeErr = e.exitError("encoder exited")
		}
	})
	return e.closeErr
}

// Kill aborts the encoder without waiting for the output to be finalized.
func (e *Encoder) Kill() {
	if e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	_ = e.Close()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append([]byte(nil), b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
