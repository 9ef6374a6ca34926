package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// parseLegacy parses the deprecated flat `key = value` config format kept
// for upgrades from older installs. One assignment per line; `#` starts a
// line comment.
func parseLegacy(content string, base Config) (Config, []Warning, error) {
	cfg := base
	warnings := make([]Warning, 0)

	lines := strings.Split(content, "\n")
	for i, rawLine := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return Config{}, nil, fmt.Errorf("line %d: expected 'key = value', got %q", lineNo, rawLine)
		}

		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if err := applyLegacyKey(&cfg, key, value); err != nil {
			return Config{}, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func applyLegacyKey(cfg *Config, key string, value string) error {
	switch key {
	case "audio.input":
		cfg.Audio.Input = value
	case "audio.fallback":
		cfg.Audio.Fallback = value

	case "vad.threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid vad.threshold %q: %w", value, err)
		}
		cfg.VAD.ThresholdProb = f
	case "vad.min_speech_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid vad.min_speech_ms %q: %w", value, err)
		}
		cfg.VAD.MinSpeechMS = n
	case "vad.min_silence_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid vad.min_silence_ms %q: %w", value, err)
		}
		cfg.VAD.MinSilenceMS = n
	case "vad.pre_roll_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid vad.pre_roll_ms %q: %w", value, err)
		}
		cfg.VAD.PreRollMS = n
	case "vad.energy_fallback":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid vad.energy_fallback %q: %w", value, err)
		}
		cfg.VAD.EnergyFallback = f
	case "vad.model_path":
		cfg.VAD.ModelPath = value

	case "ring.capacity_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ring.capacity_seconds %q: %w", value, err)
		}
		cfg.Ring.CapacitySeconds = n
	case "ring.max_speech_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ring.max_speech_seconds %q: %w", value, err)
		}
		cfg.Ring.MaxSpeechSeconds = n

	case "transcriber.timeout_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid transcriber.timeout_ms %q: %w", value, err)
		}
		cfg.Transcriber.TimeoutMS = n
	case "transcriber_cmd":
		argv, err := parseArgv(value)
		if err != nil {
			return fmt.Errorf("invalid transcriber_cmd: %w", err)
		}
		cfg.Transcriber.Command = CommandConfig{Raw: value, Argv: argv}

	case "transcript.trailing_space":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid transcript.trailing_space %q: %w", value, err)
		}
		cfg.Transcript.TrailingSpace = b
	case "transcript.capitalize_sentences":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid transcript.capitalize_sentences %q: %w", value, err)
		}
		cfg.Transcript.CapitalizeSentences = b
	case "transcript.remove_filler_words":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid transcript.remove_filler_words %q: %w", value, err)
		}
		cfg.Transcript.RemoveFillerWords = b

	case "indicator.sound_enable":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid indicator.sound_enable %q: %w", value, err)
		}
		cfg.Indicator.SoundEnable = b

	case "clipboard_cmd":
		argv, err := parseArgv(value)
		if err != nil {
			return fmt.Errorf("invalid clipboard_cmd: %w", err)
		}
		cfg.Clipboard = CommandConfig{Raw: value, Argv: argv}

	case "processor_cmd":
		argv, err := parseArgv(value)
		if err != nil {
			return fmt.Errorf("invalid processor_cmd: %w", err)
		}
		cfg.Processor.Command = CommandConfig{Raw: value, Argv: argv}
	case "processor.timeout_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid processor.timeout_ms %q: %w", value, err)
		}
		cfg.Processor.TimeoutMS = n

	case "debug.audio_dump":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid debug.audio_dump %q: %w", value, err)
		}
		cfg.Debug.EnableAudioDump = b

	default:
		return fmt.Errorf("unknown legacy config key %q", key)
	}
	return nil
}

// legacyPathFor returns the pre-JSONC config path once installed alongside
// resolvedPath, used as a fallback read when resolvedPath does not exist.
func legacyPathFor(resolvedPath string) string {
	dir := filepath.Dir(resolvedPath)
	return filepath.Join(dir, "v2m.legacy.conf")
}
