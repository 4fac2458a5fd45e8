package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// MinPower is the floor reported for silence, in dBFS.
const MinPower = -160.0

// Meter tracks average and peak power of mono s16le PCM.
//
// Observe accumulates samples; Update folds everything observed since the
// previous Update into the reported levels. Without new samples the previous
// levels are kept.
type Meter struct {
	mu sync.Mutex

	sumSquares float64
	peak       float64
	count      int

	average float64
	peakDB  float64
}

// NewMeter returns a meter reporting silence.
func NewMeter() *Meter {
	return &Meter{average: MinPower, peakDB: MinPower}
}

// Observe accumulates one PCM buffer.
func (m *Meter) Observe(pcm []byte) {
	n := len(pcm) / 2
	if n == 0 {
		return
	}

	var (
		sum  float64
		peak float64
	)
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	m.mu.Lock()
	m.sumSquares += sum
	m.count += n
	if peak > m.peak {
		m.peak = peak
	}
	m.mu.Unlock()
}

// Update refreshes the reported levels from the accumulated window.
func (m *Meter) Update() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 {
		return
	}
	m.average = toDecibels(math.Sqrt(m.sumSquares / float64(m.count)))
	m.peakDB = toDecibels(m.peak)
	m.sumSquares = 0
	m.peak = 0
	m.count = 0
}

// AveragePower returns the RMS level of the last window in dBFS.
func (m *Meter) AveragePower() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.average
}

// PeakPower returns the peak level of the last window in dBFS.
func (m *Meter) PeakPower() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakDB
}

func toDecibels(amplitude float64) float64 {
	if amplitude <= 0 {
		return MinPower
	}
	db := 20 * math.Log10(amplitude)
	if db < MinPower {
		return MinPower
	}
	if db > 0 {
		return 0
	}
	return db
}
