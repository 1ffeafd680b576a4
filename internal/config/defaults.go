package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Deepgram: DeepgramConfig{
			APIKeyEnv:     "DEEPGRAM_API_KEY",
			Model:         "nova-3",
			Language:      "en-US",
			EndpointingMS: 300,
			SmartFormat:   true,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Gesture: GestureConfig{DoubleTapWindowMS: 350},
		Typing: TypingConfig{
			KeystrokeDelayMS: 5,
			TrailingSpace:    true,
		},
		Clipboard: CommandConfig{},
		Indicator: IndicatorConfig{
			Enable:      true,
			SoundEnable: true,
		},
		Timeouts: TimeoutConfig{
			SendTimeoutMS:     2000,
			DrainTimeoutMS:    5000,
			OrderingTimeoutMS: 1000,
		},
	}
}
