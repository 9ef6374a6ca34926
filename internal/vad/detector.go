// Package vad classifies short audio windows as speech or non-speech, and
// drives the debounced Idle/SpeechPending/SpeechActive/SilencePending state
// machine that turns per-chunk classifications into SpeechStarted/SpeechEnded
// segment boundaries.
package vad

import "math"

// WindowSamples is the fixed frame size the learned detector consumes, 512
// samples at 16 kHz (~32ms).
const WindowSamples = 512

// Method reports which classification path produced a Result.
type Method int

const (
	MethodModel Method = iota
	MethodEnergy
)

func (m Method) String() string {
	if m == MethodModel {
		return "model"
	}
	return "energy"
}

// Result is the outcome of one Predict call.
type Result struct {
	Probability float64
	IsSpeech    bool
	Method      Method
}

// Model scores a fixed WindowSamples-length i16 frame and must support
// Reset between sessions. SileroModel is the production implementation;
// injecting it here rather than constructing it inside the Detector keeps
// the energy fallback testable without a model file on disk.
type Model interface {
	Score(frame []int16) float64
	Reset()
}

// Detector implements the preferred-model/energy-fallback policy: a full
// WindowSamples frame goes to the injected Model; anything shorter is too
// small to trust the model with and is scored by RMS energy instead.
type Detector struct {
	model                Model
	threshold            float64
	energyFallbackThresh float64
}

// NewDetector builds a Detector. threshold gates IsSpeech against the
// returned probability; energyFallbackThreshold gates the RMS fallback path
// directly against raw RMS, matching the original detector's two distinct
// knobs.
func NewDetector(model Model, threshold, energyFallbackThreshold float64) *Detector {
	return &Detector{
		model:                model,
		threshold:            threshold,
		energyFallbackThresh: energyFallbackThreshold,
	}
}

// Predict classifies samples (16 kHz mono f32 in [-1, 1]).
func (d *Detector) Predict(samples []float32) Result {
	if len(samples) < WindowSamples || d.model == nil {
		return d.predictEnergy(samples)
	}

	frame := make([]int16, len(samples))
	for i, s := range samples {
		frame[i] = floatToInt16(s)
	}

	probability := d.model.Score(frame)
	return Result{
		Probability: probability,
		IsSpeech:    probability > d.threshold,
		Method:      MethodModel,
	}
}

// predictEnergy computes RMS energy and derives a cheap pseudo-probability
// from it. It scores windows shorter than WindowSamples, and every window
// when no model is injected; it is less selective than the model.
func (d *Detector) predictEnergy(samples []float32) Result {
	if len(samples) == 0 {
		return Result{Method: MethodEnergy}
	}

	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))

	probability := rms / 0.15
	if probability > 1 {
		probability = 1
	} else if probability < 0 {
		probability = 0
	}

	return Result{
		Probability: probability,
		IsSpeech:    rms > d.energyFallbackThresh,
		Method:      MethodEnergy,
	}
}

// Reset clears the injected model's internal state between sessions.
func (d *Detector) Reset() {
	if d.model != nil {
		d.model.Reset()
	}
}

func floatToInt16(s float32) int16 {
	if s > 1.0 {
		s = 1.0
	} else if s < -1.0 {
		s = -1.0
	}
	return int16(s * 32767)
}
