package vad

import (
	"fmt"
	"os"

	sherpa "github.com/k2-fsa/sherpa-onnx-go-linux"
)

// sileroBufferSeconds sizes the detector's internal audio buffer. Completed
// segments are drained immediately after every window, so the buffer only
// ever holds in-flight audio.
const sileroBufferSeconds = 60.0

// SileroConfig configures the learned detector behind the Model interface.
type SileroConfig struct {
	ModelPath  string
	Threshold  float64
	SampleRate int
	NumThreads int
}

// SileroModel scores fixed WindowSamples-length windows with the Silero VAD
// network via sherpa-onnx. Segmentation stays in StateMachine; the network
// is consulted only for the per-window speech decision.
type SileroModel struct {
	vad *sherpa.VoiceActivityDetector
}

// NewSileroModel loads the Silero network at cfg.ModelPath. A missing model
// file fails before any native code runs, so callers can fall back to
// energy detection cleanly.
func NewSileroModel(cfg SileroConfig) (*SileroModel, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("vad: silero model path is empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("vad: silero model: %w", err)
	}

	modelConfig := &sherpa.VadModelConfig{}
	modelConfig.SileroVad.Model = cfg.ModelPath
	modelConfig.SileroVad.Threshold = float32(cfg.Threshold)
	modelConfig.SileroVad.MinSilenceDuration = 0.1
	modelConfig.SileroVad.MinSpeechDuration = 0.1
	modelConfig.SileroVad.WindowSize = WindowSamples
	modelConfig.SampleRate = cfg.SampleRate
	modelConfig.NumThreads = cfg.NumThreads
	if modelConfig.NumThreads < 1 {
		modelConfig.NumThreads = 1
	}

	detector := sherpa.NewVoiceActivityDetector(modelConfig, sileroBufferSeconds)
	if detector == nil {
		return nil, fmt.Errorf("vad: create silero detector from %s", cfg.ModelPath)
	}
	return &SileroModel{vad: detector}, nil
}

// Score feeds one window and reports the network's speech decision as a
// saturated probability: sherpa-onnx exposes the thresholded decision, not
// the raw network output, so the decision maps to 1.0 or 0.0 and the
// Detector's own threshold gate passes it through unchanged.
func (m *SileroModel) Score(frame []int16) float64 {
	samples := make([]float32, len(frame))
	for i, s := range frame {
		samples[i] = float32(s) / 32768.0
	}

	m.vad.AcceptWaveform(samples)
	m.drainSegments()

	if m.vad.IsSpeech() {
		return 1.0
	}
	return 0.0
}

// Reset discards queued segments between sessions.
func (m *SileroModel) Reset() {
	m.drainSegments()
}

// Close releases the native detector. The model is unusable afterwards.
func (m *SileroModel) Close() {
	if m.vad != nil {
		sherpa.DeleteVoiceActivityDetector(m.vad)
		m.vad = nil
	}
}

// drainSegments pops any segments the detector completed; the pipeline's
// own StateMachine/SpeechBuffer do the segmentation, so keeping them would
// only grow the native buffer.
func (m *SileroModel) drainSegments() {
	for !m.vad.IsEmpty() {
		m.vad.Pop()
	}
}
