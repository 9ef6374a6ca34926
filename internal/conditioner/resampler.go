package conditioner

import "math"

// sincLen is the number of taps on each side of the resampling kernel, and
// oversampling is how finely the kernel is tabulated between input samples.
// Both match the polyphase sinc resampler the capture engine was originally
// built against.
const (
	sincLen      = 256
	oversampling = 256
)

// sincResampler is a polyphase windowed-sinc resampler: a table of
// band-limited interpolation kernels is built once at construction time,
// then each output sample is produced by picking the nearest table row to
// its fractional source position and linearly interpolating between the two
// closest rows. It keeps a tail of input history across calls so chunk
// boundaries don't introduce clicks.
type sincResampler struct {
	ratio   float64 // toRate / fromRate
	cutoff  float64 // cutoff frequency in cycles per input sample
	table   [][]float32
	history []float32
	phase   float64 // source position of the next output, relative to the next chunk's start
}

// newSincResampler builds a resampler converting fromRate to toRate. cutoff
// is 0.95 of the lower of the input and output Nyquist frequencies, matching
// the conservative anti-aliasing margin used upstream.
func newSincResampler(fromRate, toRate int) *sincResampler {
	ratio := float64(toRate) / float64(fromRate)

	cutoff := 0.95 * 0.5
	if ratio < 1.0 {
		cutoff *= ratio
	}

	table := buildSincTable(cutoff)

	return &sincResampler{
		ratio:   ratio,
		cutoff:  cutoff,
		table:   table,
		history: make([]float32, sincLen),
	}
}

// buildSincTable tabulates oversampling+1 rows of a 2*sincLen-tap windowed
// sinc kernel, each row shifted by 1/oversampling of a sample.
func buildSincTable(cutoff float64) [][]float32 {
	taps := 2 * sincLen
	table := make([][]float32, oversampling+1)

	for row := 0; row <= oversampling; row++ {
		frac := float64(row) / float64(oversampling)
		kernel := make([]float32, taps)
		sum := float32(0)
		for i := 0; i < taps; i++ {
			n := float64(i-sincLen) - frac
			kernel[i] = float32(sincValue(n, cutoff) * blackmanHarris2(float64(i)-frac, float64(taps)))
			sum += kernel[i]
		}
		if sum != 0 {
			for i := range kernel {
				kernel[i] /= sum
			}
		}
		table[row] = kernel
	}
	return table
}

func sincValue(n, cutoff float64) float64 {
	x := 2 * cutoff * n
	if x == 0 {
		return 2 * cutoff
	}
	return math.Sin(math.Pi*x) / (math.Pi * n)
}

// blackmanHarris2 is the classic 4-term Blackman-Harris window squared,
// trading a wider main lobe for even lower sidelobes.
func blackmanHarris2(i, n float64) float64 {
	const a0, a1, a2, a3 = 0.35875, 0.48829, 0.14128, 0.01168
	x := 2 * math.Pi * i / (n - 1)
	w := a0 - a1*math.Cos(x) + a2*math.Cos(2*x) - a3*math.Cos(3*x)
	return w * w
}

// resample converts input at the resampler's configured ratio, carrying
// kernel history across calls so successive chunks stitch together without
// a discontinuity at the boundary.
func (r *sincResampler) resample(input []float32) []float32 {
	if r.ratio == 1.0 {
		return input
	}
	if len(input) == 0 {
		return nil
	}

	combined := append(append([]float32(nil), r.history...), input...)
	outLen := int(math.Ceil(float64(len(input))*r.ratio)) + 10
	out := make([]float32, 0, outLen)

	// phase carries the fractional source position across calls so chunked
	// input resamples to the same timeline as one contiguous buffer; without
	// it every chunk boundary would reset to position zero and drift.
	histLen := len(r.history)
	step := 1.0 / r.ratio
	pos := r.phase
	for ; pos < float64(len(input)); pos += step {
		srcIdx := int(pos) + histLen

		frac := pos - math.Floor(pos)
		rowF := frac * float64(oversampling)
		row0 := int(rowF)
		rowFrac := float32(rowF - float64(row0))
		if row0 >= oversampling {
			row0 = oversampling - 1
			rowFrac = 1
		}

		out = append(out, r.convolve(combined, srcIdx, row0, rowFrac))
	}
	r.phase = pos - float64(len(input))

	if len(input) >= sincLen {
		copy(r.history, input[len(input)-sincLen:])
	} else {
		shift := sincLen - len(input)
		copy(r.history, r.history[len(input):])
		copy(r.history[shift:], input)
	}

	return out
}

func (r *sincResampler) convolve(combined []float32, center, row0 int, rowFrac float32) float32 {
	k0 := r.table[row0]
	k1 := r.table[row0]
	if row0+1 < len(r.table) {
		k1 = r.table[row0+1]
	}

	var sum float32
	taps := len(k0)
	for j := 0; j < taps; j++ {
		idx := center - sincLen + j
		if idx < 0 || idx >= len(combined) {
			continue
		}
		tap := k0[j] + (k1[j]-k0[j])*rowFrac
		sum += combined[idx] * tap
	}
	return sum
}
