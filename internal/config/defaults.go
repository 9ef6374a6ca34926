package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"
	transcriber := "v2m-transcribe --model base.en"

	return Config{
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		VAD: VadConfig{
			ThresholdProb:  0.35,
			MinSpeechMS:    150,
			MinSilenceMS:   800,
			PreRollMS:      300,
			EnergyFallback: 0.005,
		},
		Ring: RingConfig{
			CapacitySeconds:  600,
			MaxSpeechSeconds: 120,
		},
		Transcriber: TranscriberConfig{
			Command:   CommandConfig{Raw: transcriber, Argv: mustParseArgv(transcriber)},
			TimeoutMS: 20000,
		},
		Transcript: TranscriptConfig{
			TrailingSpace:       true,
			CapitalizeSentences: true,
			RemoveFillerWords:   false,
		},
		Indicator: IndicatorConfig{
			SoundEnable: true,
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Processor: ProcessorConfig{TimeoutMS: 10000},
		Debug:     DebugConfig{},
	}
}
