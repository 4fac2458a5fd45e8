// Package encode maps encoder codes to codecs and drives the ffmpeg encoder.
package encode

import (
	"fmt"
	"strconv"
	"strings"
)

// Encoder codes accepted from the host.
const (
	CodeAAC = iota
	CodeAACELD
	CodeAACHE
	CodeOpus
	CodeAMR
	CodeAMRWB
)

// Codec is one entry of the encoder table.
type Codec struct {
	Code int
	Name string
	// ID is the CoreAudio format identifier hosts use to name the codec.
	ID uint32

	Encoder      string
	Profile      string
	Muxer        string
	BitrateKbps  float64
	FixedBitrate bool
	// SampleRate forces the output rate when the encoder supports only one.
	SampleRate int
}

var codecs = [...]Codec{
	CodeAAC: {
		Code: CodeAAC, Name: "aac", ID: fourCC("aac "),
		Encoder: "aac", Muxer: "adts", BitrateKbps: 64,
	},
	CodeAACELD: {
		Code: CodeAACELD, Name: "aac-eld", ID: fourCC("aace"),
		Encoder: "libfdk_aac", Profile: "aac_eld", Muxer: "mp4", BitrateKbps: 48,
	},
	CodeAACHE: {
		Code: CodeAACHE, Name: "aac-he", ID: fourCC("aach"),
		Encoder: "libfdk_aac", Profile: "aac_he", Muxer: "adts", BitrateKbps: 32,
	},
	CodeOpus: {
		Code: CodeOpus, Name: "opus", ID: fourCC("opus"),
		Encoder: "libopus", Muxer: "ogg", BitrateKbps: 32, SampleRate: 48000,
	},
	CodeAMR: {
		Code: CodeAMR, Name: "amr", ID: fourCC("samr"),
		Encoder: "libopencore_amrnb", Muxer: "amr", BitrateKbps: 12.2, FixedBitrate: true, SampleRate: 8000,
	},
	CodeAMRWB: {
		Code: CodeAMRWB, Name: "amr-wb", ID: fourCC("sawb"),
		Encoder: "libvo_amrwbenc", Muxer: "amr", BitrateKbps: 23.85, FixedBitrate: true, SampleRate: 16000,
	},
}

// Lookup returns the codec for code. Unknown codes fall back to AAC.
func Lookup(code int) Codec {
	if code < 0 || code >= len(codecs) {
		return codecs[CodeAAC]
	}
	return codecs[code]
}

// All returns the codec table in code order.
func All() []Codec {
	out := make([]Codec, len(codecs))
	copy(out, codecs[:])
	return out
}

// FourCC renders ID as its four-character form, e.g. "opus".
func (c Codec) FourCC() string {
	return string([]byte{byte(c.ID >> 24), byte(c.ID >> 16), byte(c.ID >> 8), byte(c.ID)})
}

func (c Codec) String() string {
	return fmt.Sprintf("%s (%q)", c.Name, c.FourCC())
}

func fourCC(s string) uint32 {
	if len(s) != 4 {
		panic("fourCC requires exactly four bytes: " + strconv.Quote(s))
	}
	return uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3])
}

// Quality scales the codec's nominal bitrate.
type Quality int

const (
	QualityMin Quality = iota
	QualityLow
	QualityMedium
	QualityHigh
	QualityMax
)

// ParseQuality accepts min, low, medium, high or max.
func ParseQuality(raw string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "min":
		return QualityMin, nil
	case "low":
		return QualityLow, nil
	case "medium":
		return QualityMedium, nil
	case "", "high":
		return QualityHigh, nil
	case "max":
		return QualityMax, nil
	default:
		return QualityHigh, fmt.Errorf("unknown quality %q", raw)
	}
}

func (q Quality) String() string {
	switch q {
	case QualityMin:
		return "min"
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	case QualityMax:
		return "max"
	default:
		return fmt.Sprintf("quality(%d)", int(q))
	}
}

func (q Quality) scale() float64 {
	switch q {
	case QualityMin:
		return 0.25
	case QualityLow:
		return 0.5
	case QualityMedium:
		return 0.75
	case QualityMax:
		return 1.5
	default:
		return 1
	}
}

// Bitrate renders the ffmpeg -b:a value for quality.
func (c Codec) Bitrate(q Quality) string {
	kbps := c.BitrateKbps
	if !c.FixedBitrate {
		kbps *= q.scale()
	}
	return strconv.FormatFloat(kbps, 'f', -1, 64) + "k"
}

// OutputSampleRate returns the rate ffmpeg writes for an input captured at inputRate.
func (c Codec) OutputSampleRate(inputRate int) int {
	if c.SampleRate > 0 {
		return c.SampleRate
	}
	return inputRate
}
