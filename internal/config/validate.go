package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Deepgram.APIKeyEnv) == "" {
		return nil, fmt.Errorf("deepgram.api_key_env must not be empty")
	}
	if strings.TrimSpace(cfg.Deepgram.Model) == "" {
		return nil, fmt.Errorf("deepgram.model must not be empty")
	}
	if strings.TrimSpace(cfg.Deepgram.Language) == "" {
		return nil, fmt.Errorf("deepgram.language must not be empty")
	}
	if cfg.Deepgram.EndpointingMS < 0 {
		return nil, fmt.Errorf("deepgram.endpointing_ms must be >= 0")
	}

	if cfg.Gesture.DoubleTapWindowMS <= 0 {
		return nil, fmt.Errorf("gesture.double_tap_window_ms must be > 0")
	}
	if cfg.Gesture.DoubleTapWindowMS > 2000 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("gesture.double_tap_window_ms=%d is unusually large; single taps may register as doubles", cfg.Gesture.DoubleTapWindowMS)})
	}

	if cfg.Typing.KeystrokeDelayMS < 0 {
		return nil, fmt.Errorf("typing.keystroke_delay_ms must be >= 0")
	}

	if cfg.Clipboard.Raw != "" && len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd is configured but empty")
	}

	if cfg.Timeouts.SendTimeoutMS <= 0 {
		return nil, fmt.Errorf("timeouts.send_timeout_ms must be > 0")
	}
	if cfg.Timeouts.DrainTimeoutMS <= 0 {
		return nil, fmt.Errorf("timeouts.drain_timeout_ms must be > 0")
	}
	if cfg.Timeouts.OrderingTimeoutMS <= 0 {
		return nil, fmt.Errorf("timeouts.ordering_timeout_ms must be > 0")
	}
	if cfg.Timeouts.OrderingTimeoutMS > cfg.Timeouts.DrainTimeoutMS {
		warnings = append(warnings, Warning{Message: "timeouts.ordering_timeout_ms exceeds drain_timeout_ms; held-back chunks may be flushed by the drain deadline instead"})
	}

	return warnings, nil
}
