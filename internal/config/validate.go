package config

import (
	"fmt"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.VAD.ThresholdProb <= 0 || cfg.VAD.ThresholdProb >= 1 {
		return nil, fmt.Errorf("vad.threshold must be between 0 and 1")
	}
	if cfg.VAD.MinSpeechMS <= 0 {
		return nil, fmt.Errorf("vad.min_speech_ms must be > 0")
	}
	if cfg.VAD.MinSilenceMS <= 0 {
		return nil, fmt.Errorf("vad.min_silence_ms must be > 0")
	}
	if cfg.VAD.PreRollMS < 0 {
		return nil, fmt.Errorf("vad.pre_roll_ms must be >= 0")
	}
	if cfg.VAD.EnergyFallback <= 0 {
		return nil, fmt.Errorf("vad.energy_fallback must be > 0")
	}

	if cfg.Ring.CapacitySeconds <= 0 {
		return nil, fmt.Errorf("ring.capacity_seconds must be > 0")
	}
	if cfg.Ring.MaxSpeechSeconds <= 0 {
		return nil, fmt.Errorf("ring.max_speech_seconds must be > 0")
	}
	if cfg.Ring.MaxSpeechSeconds > cfg.Ring.CapacitySeconds {
		return nil, fmt.Errorf("ring.max_speech_seconds must not exceed ring.capacity_seconds")
	}

	if len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty")
	}
	if len(cfg.Transcriber.Command.Argv) == 0 {
		return nil, fmt.Errorf("transcriber_cmd must not be empty")
	}
	if cfg.Transcriber.TimeoutMS <= 0 {
		return nil, fmt.Errorf("transcriber.timeout_ms must be > 0")
	}

	return warnings, nil
}
