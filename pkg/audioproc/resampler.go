// Package audioproc turns raw capture output into speech-gated 16kHz mono
// chunks: downmixing, resampling, voice-activity detection, and the
// chunker state machine described in spec.md section 4.2.
package audioproc

import "math"

const polyphaseTaps = 64

// PolyphaseResampler downsamples with a windowed-sinc anti-aliasing filter,
// preserving its history across calls so a stream of short batches
// resamples identically to one long call — this is the "preserve the
// resampler's internal state across ticks" requirement in section 4.2.
type PolyphaseResampler struct {
	fromRate int
	toRate   int
	ratio    float64

	filter  []float32
	history []float32
}

// NewPolyphaseResampler builds a resampler for a fixed fromRate -> toRate
// conversion (typically 48kHz -> 16kHz). Filter cutoff sits at the output
// Nyquist frequency so downsampling does not alias.
func NewPolyphaseResampler(fromRate, toRate int) *PolyphaseResampler {
	ratio := float64(toRate) / float64(fromRate)
	cutoff := 0.5
	if ratio < 1.0 {
		cutoff = ratio * 0.5
	}

	filter := make([]float32, polyphaseTaps)
	for i := 0; i < polyphaseTaps; i++ {
		n := float64(i) - float64(polyphaseTaps-1)/2.0
		if n == 0 {
			filter[i] = float32(2.0 * cutoff)
		} else {
			sinc := math.Sin(2.0*math.Pi*cutoff*n) / (math.Pi * n)
			window := 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/float64(polyphaseTaps-1))
			filter[i] = float32(sinc * window)
		}
	}
	var sum float32
	for _, f := range filter {
		sum += f
	}
	for i := range filter {
		filter[i] /= sum
	}

	return &PolyphaseResampler{
		fromRate: fromRate,
		toRate:   toRate,
		ratio:    ratio,
		filter:   filter,
		history:  make([]float32, polyphaseTaps),
	}
}

// Resample converts a batch of samples, consuming and updating the
// resampler's filter history so the next call continues seamlessly.
func (r *PolyphaseResampler) Resample(input []float32) []float32 {
	if r.ratio == 1.0 {
		return append([]float32(nil), input...)
	}
	if len(input) == 0 {
		return nil
	}
	if r.ratio > 1.0 {
		return r.upsample(input)
	}
	return r.downsample(input)
}

func (r *PolyphaseResampler) downsample(input []float32) []float32 {
	extended := make([]float32, 0, len(r.history)+len(input))
	extended = append(extended, r.history...)
	extended = append(extended, input...)

	outputLen := int(float64(len(input)) * r.ratio)
	output := make([]float32, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / r.ratio
		// Centering half a filter length back keeps every tap inside the
		// history plus this batch, so no output depends on unseen input.
		center := int(srcPos) + len(r.history) - polyphaseTaps/2

		var sample float32
		for t := 0; t < polyphaseTaps; t++ {
			idx := center - polyphaseTaps/2 + t
			if idx >= 0 && idx < len(extended) {
				sample += extended[idx] * r.filter[t]
			}
		}
		output[i] = sample
	}

	if len(input) >= len(r.history) {
		copy(r.history, input[len(input)-len(r.history):])
	} else {
		copy(r.history, r.history[len(input):])
		copy(r.history[len(r.history)-len(input):], input)
	}

	return output
}

func (r *PolyphaseResampler) upsample(input []float32) []float32 {
	outputLen := int(float64(len(input)) * r.ratio)
	output := make([]float32, outputLen)
	last := r.history[len(r.history)-1]

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / r.ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		sample1 := last
		if srcIdx < len(input) {
			sample1 = input[srcIdx]
		}
		sample2 := sample1
		if srcIdx+1 < len(input) {
			sample2 = input[srcIdx+1]
		}
		output[i] = sample1 + (sample2-sample1)*frac
	}

	if len(input) > 0 {
		r.history[len(r.history)-1] = input[len(input)-1]
	}
	return output
}

// Downmix averages interleaved multi-channel samples to mono, per section
// 4.2 step 2. channels==1 returns the input unchanged.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	n := len(samples) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
