// Package conditioner brings heterogeneous capture-device audio to the
// canonical transcription format: 16 kHz, mono, f32 in [-1.0, 1.0].
package conditioner

// TargetSampleRate is the sample rate every conditioned frame is resampled to.
const TargetSampleRate = 16000

// Conditioner downmixes N-channel interleaved frames to mono and resamples
// them to TargetSampleRate. One Conditioner is bound to a single device's
// (rate, channels) pair for the lifetime of a capture session, since the
// sinc resampler carries history across calls.
type Conditioner struct {
	channels   int
	deviceRate int
	resampler  *sincResampler
}

// New builds a Conditioner for audio arriving at deviceRate with the given
// channel count.
func New(deviceRate, channels int) *Conditioner {
	if channels < 1 {
		channels = 1
	}
	return &Conditioner{
		channels:   channels,
		deviceRate: deviceRate,
		resampler:  newSincResampler(deviceRate, TargetSampleRate),
	}
}

// Condition downmixes interleaved and resamples it to 16 kHz mono,
// clamping the result to [-1.0, 1.0].
func (c *Conditioner) Condition(interleaved []float32) []float32 {
	mono := downmix(interleaved, c.channels)
	resampled := c.resampler.resample(mono)
	clamp(resampled)
	return resampled
}

// downmix averages N-channel interleaved frames into mono with equal
// per-channel weight. Trailing samples that don't form a full frame are
// dropped; callers should size batches on frame boundaries.
func downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += interleaved[base+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

func clamp(samples []float32) {
	for i, s := range samples {
		switch {
		case s > 1.0:
			samples[i] = 1.0
		case s < -1.0:
			samples[i] = -1.0
		}
	}
}

// SelectRate picks the device sample rate the conditioner should request,
// given the rates a device reports support for. It prefers the exact
// TargetSampleRate when offered, and otherwise the device's maximum rate so
// downsampling has the most fidelity to work from.
func SelectRate(supportedRates []int) int {
	best := 0
	for _, rate := range supportedRates {
		if rate == TargetSampleRate {
			return TargetSampleRate
		}
		if rate > best {
			best = rate
		}
	}
	return best
}
