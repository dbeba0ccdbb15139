package audio

import (
	"encoding/binary"
	"io"
	"math"
)

// Float32ToPCM16 converts interleaved float32 samples in [-1, 1] into
// little-endian 16-bit PCM, the format NewWavBuffer expects.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}

// EncodeWAV wraps float32 PCM in a 16-bit mono RIFF/WAVE container at the
// given sample rate, for derived exports and for the STT backends that
// expect a WAV payload over the wire.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	return NewWavBuffer(Float32ToPCM16(samples), sampleRate)
}

// WriteFloat32LE appends interleaved float32 samples to w in little-endian
// order, the layout of the session's audio.raw file (spec.md section 6).
func WriteFloat32LE(w io.Writer, samples []float32) error {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	_, err := w.Write(buf)
	return err
}

// ReadFloat32LE decodes a little-endian float32 PCM buffer, the inverse of
// WriteFloat32LE. Used when exporting a persisted audio.raw to audio.wav.
func ReadFloat32LE(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
