package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestFloat32ToPCM16RoundTripsSign(t *testing.T) {
	samples := []float32{0, 1, -1, 0.5}
	pcm := Float32ToPCM16(samples)
	if len(pcm) != len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*2, len(pcm))
	}
	for i, want := range []int{0, 1, -1, 1} {
		got := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if (want > 0 && got <= 0) || (want < 0 && got >= 0) || (want == 0 && got != 0) {
			t.Errorf("sample %d: expected sign %d, got %d", i, want, got)
		}
	}
}

func TestEncodeWAVProducesRIFFContainer(t *testing.T) {
	wav := EncodeWAV([]float32{0, 0.25, -0.25}, 16000)
	if len(wav) != 44+3*2 {
		t.Errorf("expected 44-byte header plus 6 bytes of PCM, got %d", len(wav))
	}
}

func TestWriteReadFloat32LERoundTrip(t *testing.T) {
	var buf bytes.Buffer
	samples := []float32{0.1, -0.2, 0.3, -0.4}
	if err := WriteFloat32LE(&buf, samples); err != nil {
		t.Fatalf("WriteFloat32LE: %v", err)
	}
	out := ReadFloat32LE(buf.Bytes())
	if len(out) != len(samples) {
		t.Fatalf("expected %d samples back, got %d", len(samples), len(out))
	}
	for i := range samples {
		diff := out[i] - samples[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-6 {
			t.Errorf("sample %d: expected %f, got %f", i, samples[i], out[i])
		}
	}
}
