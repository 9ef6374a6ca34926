// Package config resolves, parses, validates, and defaults v2m configuration.
package config

// Config is the fully materialized runtime configuration used by v2m.
// Field tags give GET_CONFIG/UPDATE_CONFIG responses a stable snake_case
// wire shape. Its sections match the JSONC config file, but commands do not:
// here they are objects (clipboard, transcriber.command, processor.command),
// while parser_jsonc.go reads them from the clipboard_cmd, transcriber_cmd
// and processor_cmd strings.
type Config struct {
	Audio       AudioConfig       `json:"audio"`
	VAD         VadConfig         `json:"vad"`
	Ring        RingConfig        `json:"ring"`
	Transcriber TranscriberConfig `json:"transcriber"`
	Transcript  TranscriptConfig  `json:"transcript"`
	Indicator   IndicatorConfig   `json:"indicator"`
	Clipboard   CommandConfig     `json:"clipboard"`
	Processor   ProcessorConfig   `json:"processor"`
	Debug       DebugConfig       `json:"debug"`
}

// AudioConfig controls preferred and fallback input-device selection.
type AudioConfig struct {
	Input    string `json:"input"`
	Fallback string `json:"fallback"`
}

// VadConfig tunes the voice-activity detector and its debounce state machine.
// ModelPath points at a Silero VAD onnx network; when empty the detector runs
// on RMS energy alone.
type VadConfig struct {
	ThresholdProb  float64 `json:"threshold"`
	MinSpeechMS    int     `json:"min_speech_ms"`
	MinSilenceMS   int     `json:"min_silence_ms"`
	PreRollMS      int     `json:"pre_roll_ms"`
	EnergyFallback float64 `json:"energy_fallback"`
	ModelPath      string  `json:"model_path"`
}

// RingConfig sizes the lock-free ingress ring and the bounded active speech buffer.
type RingConfig struct {
	CapacitySeconds  int `json:"capacity_seconds"`
	MaxSpeechSeconds int `json:"max_speech_seconds"`
}

// TranscriberConfig configures the external synchronous ASR command, invoked
// once per recording session on all the speech accumulated before stop or
// cancel.
type TranscriberConfig struct {
	Command   CommandConfig `json:"command"`
	TimeoutMS int           `json:"timeout_ms"`
}

// ProcessorConfig configures the optional external text post-processor
// invoked by PROCESS_TEXT (e.g. an LLM-backed rewrite command). An empty
// Command disables post-processing; the text is then returned unchanged.
type ProcessorConfig struct {
	Command   CommandConfig `json:"command"`
	TimeoutMS int           `json:"timeout_ms"`
}

// TranscriptConfig controls transcript assembly formatting.
type TranscriptConfig struct {
	TrailingSpace       bool `json:"trailing_space"`
	CapitalizeSentences bool `json:"capitalize_sentences"`
	RemoveFillerWords   bool `json:"remove_filler_words"`
}

// IndicatorConfig controls audible cue playback.
type IndicatorConfig struct {
	SoundEnable bool `json:"sound_enable"`
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string   `json:"raw"`
	Argv []string `json:"argv"`
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool `json:"audio_dump"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
