// Package config resolves, parses, validates, and defaults aquavoice configuration.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the fully materialized runtime configuration used by aquavoice.
type Config struct {
	Deepgram  DeepgramConfig
	Audio     AudioConfig
	Gesture   GestureConfig
	Typing    TypingConfig
	Clipboard CommandConfig
	Indicator IndicatorConfig
	Timeouts  TimeoutConfig
}

// DeepgramConfig controls the streaming recognizer connection.
type DeepgramConfig struct {
	// APIKeyEnv names the environment variable holding the Deepgram API
	// key. The key itself never lives in the config file.
	APIKeyEnv string

	Model         string
	Language      string
	EndpointingMS int
	SmartFormat   bool
}

// ResolveAPIKey reads the API key from the configured environment variable.
func (d DeepgramConfig) ResolveAPIKey() (string, error) {
	key := os.Getenv(d.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", d.APIKeyEnv)
	}
	return key, nil
}

// Endpointing returns the server-side endpointing window.
func (d DeepgramConfig) Endpointing() time.Duration {
	return time.Duration(d.EndpointingMS) * time.Millisecond
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// GestureConfig tunes the double-tap hotkey.
type GestureConfig struct {
	DoubleTapWindowMS int
}

// DoubleTapWindow returns the maximum gap between the two taps.
func (g GestureConfig) DoubleTapWindow() time.Duration {
	return time.Duration(g.DoubleTapWindowMS) * time.Millisecond
}

// TypingConfig controls how recognized text is delivered as keystrokes.
type TypingConfig struct {
	KeystrokeDelayMS int
	TrailingSpace    bool
}

// KeystrokeDelay returns the pause between synthetic keystrokes.
func (t TypingConfig) KeystrokeDelay() time.Duration {
	return time.Duration(t.KeystrokeDelayMS) * time.Millisecond
}

// CommandConfig stores a raw command string and its parsed argv form.
// An empty Raw means the built-in path is used instead.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// IsSet reports whether the user configured an override command.
func (c CommandConfig) IsSet() bool { return len(c.Argv) > 0 }

// IndicatorConfig controls audible cues and desktop notifications.
type IndicatorConfig struct {
	Enable      bool
	SoundEnable bool

	// Per-cue sound file overrides. Empty means the synthesized tone.
	SoundStartFile    string
	SoundStopFile     string
	SoundCompleteFile string
	SoundCancelFile   string
	SoundErrorFile    string
}

// TimeoutConfig gathers the session timing knobs.
type TimeoutConfig struct {
	SendTimeoutMS     int
	DrainTimeoutMS    int
	OrderingTimeoutMS int
}

// SendTimeout bounds a single audio frame write to the recognizer.
func (t TimeoutConfig) SendTimeout() time.Duration {
	return time.Duration(t.SendTimeoutMS) * time.Millisecond
}

// DrainTimeout bounds the wait for trailing transcript after stop.
func (t TimeoutConfig) DrainTimeout() time.Duration {
	return time.Duration(t.DrainTimeoutMS) * time.Millisecond
}

// OrderingTimeout bounds how long an out-of-order chunk is held back.
func (t TimeoutConfig) OrderingTimeout() time.Duration {
	return time.Duration(t.OrderingTimeoutMS) * time.Millisecond
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}

func (w Warning) String() string { return w.Message }
