// Package audio handles device discovery, selection, PCM capture streams, and metering.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// DefaultSampleRate is the capture rate used when none is requested.
	DefaultSampleRate = 16000

	defaultChunkBytes = 640 // 20ms @ 16kHz mono s16
	clientName        = "waveform"
	clientIcon        = "audio-input-microphone"
)

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
	Bluetooth   bool
}

// Usable reports whether the device can deliver audio right now.
func (d Device) Usable() bool {
	return d.Available && !d.Muted
}

// Preference is the configured source choice.
type Preference struct {
	Input          string
	Fallback       string
	AllowBluetooth bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ErrNoDevices reports a reachable server without any input source.
var ErrNoDevices = errors.New("no audio input devices found")

// flushTimeout bounds how long Stop waits for a reader to take the final
// partial chunk.
var flushTimeout = 2 * time.Second

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName(clientIcon),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
			Bluetooth:   isBluetoothSource(source.SourceName),
		})
	}
	return devices, nil
}

// SelectDevice resolves input/fallback preferences against live devices.
func SelectDevice(ctx context.Context, pref Preference) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return SelectFromList(devices, pref)
}

// SelectFromList applies the selection policy to a pre-fetched device list.
func SelectFromList(devices []Device, pref Preference) (Selection, error) {
	if !pref.AllowBluetooth {
		devices = withoutBluetooth(devices)
	}
	if len(devices) == 0 {
		return Selection{}, ErrNoDevices
	}

	var (
		defaultDevice *Device
		byInput       *Device
		byFallback    *Device
	)

	input := strings.TrimSpace(strings.ToLower(pref.Input))
	fallback := strings.TrimSpace(strings.ToLower(pref.Fallback))

	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && input != "" && input != "default" && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && fallback != "" && fallback != "default" && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	chooseDefault := func() (*Device, error) {
		if defaultDevice == nil {
			return nil, errors.New("default audio source is unavailable")
		}
		return defaultDevice, nil
	}

	selectPrimary := func() (*Device, error) {
		if input == "" || input == "default" {
			return chooseDefault()
		}
		if byInput != nil {
			return byInput, nil
		}
		return nil, fmt.Errorf("audio.input %q did not match any device", input)
	}

	primary, err := selectPrimary()
	if err != nil {
		return Selection{}, err
	}
	if primary.Usable() {
		return Selection{Device: *primary}, nil
	}

	primaryReason := "unavailable"
	if primary.Muted {
		primaryReason = "muted"
	}

	fallbackDevice := primary
	if fallback != "" && fallback != "default" {
		if byFallback == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, primaryReason, fallback)
		}
		fallbackDevice = byFallback
	} else {
		d, derr := chooseDefault()
		if derr != nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: %w", primary.ID, primaryReason, derr)
		}
		fallbackDevice = d
	}

	if !fallbackDevice.Available {
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", fallbackDevice.ID)
	}
	if fallbackDevice.Muted {
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", fallbackDevice.ID)
	}

	return Selection{
		Device:   *fallbackDevice,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, primaryReason, fallbackDevice.ID),
		Fallback: primary.ID != fallbackDevice.ID,
	}, nil
}

func withoutBluetooth(devices []Device) []Device {
	out := make([]Device, 0, len(devices))
	for _, dev := range devices {
		if dev.Bluetooth {
			continue
		}
		out = append(out, dev)
	}
	return out
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

func isBluetoothSource(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "bluez_")
}

// CaptureOptions controls the record stream format.
type CaptureOptions struct {
	SampleRate int
	MediaName  string
}

// Capture streams 20ms mono s16le PCM chunks from one selected Pulse source.
type Capture struct {
	device     Device
	sampleRate int
	chunkSize  int

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool
	running bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// OpenCapture creates a corked record stream on selected. Call Start to begin.
func OpenCapture(_ context.Context, selected Device, opts CaptureOptions) (*Capture, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if strings.TrimSpace(opts.MediaName) == "" {
		opts.MediaName = "waveform recording"
	}

	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := &Capture{
		device:     selected,
		sampleRate: opts.SampleRate,
		chunkSize:  chunkBytesFor(opts.SampleRate),
		client:     client,
		chunks:     make(chan []byte, 128),
		stopCh:     make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(opts.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(capture.chunkSize)),
		pulse.RecordMediaName(opts.MediaName),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	return capture, nil
}

// chunkBytesFor returns the byte size of 20ms of mono s16 audio at rate.
func chunkBytesFor(rate int) int {
	if rate <= 0 {
		return defaultChunkBytes
	}
	n := rate / 50 * 2
	if n < 2 {
		return 2
	}
	return n
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// SampleRate returns the stream rate in Hz.
func (c *Capture) SampleRate() int {
	return c.sampleRate
}

// Chunks returns the PCM stream as fixed-size byte slices.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Running reports whether the stream is currently uncorked.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start begins or resumes delivery of PCM.
func (c *Capture) Start() {
	c.mu.Lock()
	if c.stopped || c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Start()
	}
}

// Pause corks the stream; Start resumes it.
func (c *Capture) Pause() {
	c.mu.Lock()
	if c.stopped || !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
	}
}

// Stop halts the stream, flushes residual PCM, and closes Chunks exactly once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	pending := append([]byte(nil), c.pending...)
	c.pending = nil
	c.mu.Unlock()

	if len(pending) > 0 {
		timer := time.NewTimer(flushTimeout)
		select {
		case c.chunks <- pending:
		case <-timer.C:
		}
		timer.Stop()
	}

	close(c.chunks)
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

func (c *Capture) chunkBytes() int {
	if c.chunkSize <= 0 {
		return defaultChunkBytes
	}
	return c.chunkSize
}

// onPCM receives raw Pulse frames and emits chunk-sized slices to c.chunks.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	size := c.chunkBytes()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as c.stopped to avoid Add/Wait races.
	c.inflight.Add(1)

	c.pending = append(c.pending, buffer...)

	chunks := make([][]byte, 0, len(c.pending)/size)
	for len(c.pending) >= size {
		chunk := make([]byte, size)
		copy(chunk, c.pending[:size])
		c.pending = c.pending[size:]
		chunks = append(chunks, chunk)
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	c.bytes.Add(int64(len(buffer)))

	for _, chunk := range chunks {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.chunks <- chunk:
		}
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
