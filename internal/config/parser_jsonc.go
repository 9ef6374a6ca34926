package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Audio       *jsoncAudio       `json:"audio"`
	VAD         *jsoncVAD         `json:"vad"`
	Ring        *jsoncRing        `json:"ring"`
	Transcriber *jsoncTranscriber `json:"transcriber"`
	Transcript  *jsoncTranscript  `json:"transcript"`
	Indicator   *jsoncIndicator   `json:"indicator"`

	ClipboardCmd   *string     `json:"clipboard_cmd"`
	TranscriberCmd *string     `json:"transcriber_cmd"`
	ProcessorCmd   *string     `json:"processor_cmd"`
	Processor      *jsoncProcessor `json:"processor"`
	Debug          *jsoncDebug `json:"debug"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncVAD struct {
	Threshold      *float64 `json:"threshold"`
	MinSpeechMS    *int     `json:"min_speech_ms"`
	MinSilenceMS   *int     `json:"min_silence_ms"`
	PreRollMS      *int     `json:"pre_roll_ms"`
	EnergyFallback *float64 `json:"energy_fallback"`
	ModelPath      *string  `json:"model_path"`
}

type jsoncRing struct {
	CapacitySeconds  *int `json:"capacity_seconds"`
	MaxSpeechSeconds *int `json:"max_speech_seconds"`
}

type jsoncTranscriber struct {
	TimeoutMS *int `json:"timeout_ms"`
}

type jsoncTranscript struct {
	TrailingSpace       *bool `json:"trailing_space"`
	CapitalizeSentences *bool `json:"capitalize_sentences"`
	RemoveFillerWords   *bool `json:"remove_filler_words"`
}

type jsoncIndicator struct {
	SoundEnable *bool `json:"sound_enable"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

type jsoncProcessor struct {
	TimeoutMS *int `json:"timeout_ms"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
	}

	if payload.VAD != nil {
		if payload.VAD.Threshold != nil {
			cfg.VAD.ThresholdProb = *payload.VAD.Threshold
		}
		if payload.VAD.MinSpeechMS != nil {
			cfg.VAD.MinSpeechMS = *payload.VAD.MinSpeechMS
		}
		if payload.VAD.MinSilenceMS != nil {
			cfg.VAD.MinSilenceMS = *payload.VAD.MinSilenceMS
		}
		if payload.VAD.PreRollMS != nil {
			cfg.VAD.PreRollMS = *payload.VAD.PreRollMS
		}
		if payload.VAD.EnergyFallback != nil {
			cfg.VAD.EnergyFallback = *payload.VAD.EnergyFallback
		}
		if payload.VAD.ModelPath != nil {
			cfg.VAD.ModelPath = *payload.VAD.ModelPath
		}
	}

	if payload.Ring != nil {
		if payload.Ring.CapacitySeconds != nil {
			cfg.Ring.CapacitySeconds = *payload.Ring.CapacitySeconds
		}
		if payload.Ring.MaxSpeechSeconds != nil {
			cfg.Ring.MaxSpeechSeconds = *payload.Ring.MaxSpeechSeconds
		}
	}

	if payload.Transcriber != nil && payload.Transcriber.TimeoutMS != nil {
		cfg.Transcriber.TimeoutMS = *payload.Transcriber.TimeoutMS
	}

	if payload.Transcript != nil {
		if payload.Transcript.TrailingSpace != nil {
			cfg.Transcript.TrailingSpace = *payload.Transcript.TrailingSpace
		}
		if payload.Transcript.CapitalizeSentences != nil {
			cfg.Transcript.CapitalizeSentences = *payload.Transcript.CapitalizeSentences
		}
		if payload.Transcript.RemoveFillerWords != nil {
			cfg.Transcript.RemoveFillerWords = *payload.Transcript.RemoveFillerWords
		}
	}

	if payload.Indicator != nil && payload.Indicator.SoundEnable != nil {
		cfg.Indicator.SoundEnable = *payload.Indicator.SoundEnable
	}

	if payload.ClipboardCmd != nil {
		raw := *payload.ClipboardCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid clipboard_cmd: %w", err)
		}
		cfg.Clipboard = CommandConfig{Raw: raw, Argv: argv}
	}

	if payload.TranscriberCmd != nil {
		raw := *payload.TranscriberCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid transcriber_cmd: %w", err)
		}
		cfg.Transcriber.Command = CommandConfig{Raw: raw, Argv: argv}
	}

	if payload.ProcessorCmd != nil {
		raw := *payload.ProcessorCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid processor_cmd: %w", err)
		}
		cfg.Processor.Command = CommandConfig{Raw: raw, Argv: argv}
	}

	if payload.Processor != nil && payload.Processor.TimeoutMS != nil {
		cfg.Processor.TimeoutMS = *payload.Processor.TimeoutMS
	}

	if payload.Debug != nil && payload.Debug.AudioDump != nil {
		cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
	}

	return warnings, nil
}

// ApplyJSON merges a plain-JSON partial config payload, as carried by the
// UPDATE_CONFIG IPC command, onto base, reusing the same field set the
// JSONC config file accepts. Unknown fields are rejected, same as the file
// parser.
func ApplyJSON(base Config, raw []byte) (Config, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return base, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, err
	}

	cfg := base
	if _, err := payload.applyTo(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
