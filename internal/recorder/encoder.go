package recorder

import "github.com/rbright/waveform/internal/encode"

// MapEncoder resolves a host encoder code. Unknown codes map to AAC.
func MapEncoder(code int) encode.Codec {
	return encode.Lookup(code)
}
