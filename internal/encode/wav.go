package encode

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDump writes captured s16le PCM to a 16-bit WAV file.
type WAVDump struct {
	file *os.File
	enc  *wav.Encoder
	buf  *audio.IntBuffer
}

// CreateWAVDump opens path for a mono dump at sampleRate.
func CreateWAVDump(path string, sampleRate int) (*WAVDump, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open dump file %q: %w", path, err)
	}

	return &WAVDump{
		file: file,
		enc:  wav.NewEncoder(file, sampleRate, 16, 1, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Write appends little-endian 16-bit samples. A trailing odd byte is dropped.
func (d *WAVDump) Write(pcm []byte) error {
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	if cap(d.buf.Data) < n {
		d.buf.Data = make([]int, n)
	}
	d.buf.Data = d.buf.Data[:n]
	for i := 0; i < n; i++ {
		d.buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	if err := d.enc.Write(d.buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and closes the file.
func (d *WAVDump) Close() error {
	encErr := d.enc.Close()
	fileErr := d.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize wav: %w", encErr)
	}
	return fileErr
}
