package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Deepgram  *jsoncDeepgram  `json:"deepgram"`
	Audio     *jsoncAudio     `json:"audio"`
	Gesture   *jsoncGesture   `json:"gesture"`
	Typing    *jsoncTyping    `json:"typing"`
	Indicator *jsoncIndicator `json:"indicator"`
	Timeouts  *jsoncTimeouts  `json:"timeouts"`

	ClipboardCmd *string `json:"clipboard_cmd"`
}

type jsoncDeepgram struct {
	APIKeyEnv     *string `json:"api_key_env"`
	Model         *string `json:"model"`
	Language      *string `json:"language"`
	EndpointingMS *int    `json:"endpointing_ms"`
	SmartFormat   *bool   `json:"smart_format"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncGesture struct {
	DoubleTapWindowMS *int `json:"double_tap_window_ms"`
}

type jsoncTyping struct {
	KeystrokeDelayMS *int  `json:"keystroke_delay_ms"`
	TrailingSpace    *bool `json:"trailing_space"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	SoundEnable       *bool   `json:"sound_enable"`
	SoundStartFile    *string `json:"sound_start_file"`
	SoundStopFile     *string `json:"sound_stop_file"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	SoundCancelFile   *string `json:"sound_cancel_file"`
	SoundErrorFile    *string `json:"sound_error_file"`
}

type jsoncTimeouts struct {
	SendTimeoutMS     *int `json:"send_timeout_ms"`
	DrainTimeoutMS    *int `json:"drain_timeout_ms"`
	OrderingTimeoutMS *int `json:"ordering_timeout_ms"`
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

	if payload.Deepgram != nil {
		if payload.Deepgram.APIKeyEnv != nil {
			cfg.Deepgram.APIKeyEnv = strings.TrimSpace(*payload.Deepgram.APIKeyEnv)
		}
		if payload.Deepgram.Model != nil {
			cfg.Deepgram.Model = strings.TrimSpace(*payload.Deepgram.Model)
		}
		if payload.Deepgram.Language != nil {
			cfg.Deepgram.Language = strings.TrimSpace(*payload.Deepgram.Language)
		}
		if payload.Deepgram.EndpointingMS != nil {
			cfg.Deepgram.EndpointingMS = *payload.Deepgram.EndpointingMS
		}
		if payload.Deepgram.SmartFormat != nil {
			cfg.Deepgram.SmartFormat = *payload.Deepgram.SmartFormat
		}
	}

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
	}

	if payload.Gesture != nil && payload.Gesture.DoubleTapWindowMS != nil {
		cfg.Gesture.DoubleTapWindowMS = *payload.Gesture.DoubleTapWindowMS
	}

	if payload.Typing != nil {
		if payload.Typing.KeystrokeDelayMS != nil {
			cfg.Typing.KeystrokeDelayMS = *payload.Typing.KeystrokeDelayMS
		}
		if payload.Typing.TrailingSpace != nil {
			cfg.Typing.TrailingSpace = *payload.Typing.TrailingSpace
		}
	}

	if payload.Indicator != nil {
		if payload.Indicator.Enable != nil {
			cfg.Indicator.Enable = *payload.Indicator.Enable
		}
		if payload.Indicator.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *payload.Indicator.SoundEnable
		}
		if payload.Indicator.SoundStartFile != nil {
			cfg.Indicator.SoundStartFile = strings.TrimSpace(*payload.Indicator.SoundStartFile)
		}
		if payload.Indicator.SoundStopFile != nil {
			cfg.Indicator.SoundStopFile = strings.TrimSpace(*payload.Indicator.SoundStopFile)
		}
		if payload.Indicator.SoundCompleteFile != nil {
			cfg.Indicator.SoundCompleteFile = strings.TrimSpace(*payload.Indicator.SoundCompleteFile)
		}
		if payload.Indicator.SoundCancelFile != nil {
			cfg.Indicator.SoundCancelFile = strings.TrimSpace(*payload.Indicator.SoundCancelFile)
		}
		if payload.Indicator.SoundErrorFile != nil {
			cfg.Indicator.SoundErrorFile = strings.TrimSpace(*payload.Indicator.SoundErrorFile)
		}
	}

	if payload.Timeouts != nil {
		if payload.Timeouts.SendTimeoutMS != nil {
			cfg.Timeouts.SendTimeoutMS = *payload.Timeouts.SendTimeoutMS
		}
		if payload.Timeouts.DrainTimeoutMS != nil {
			cfg.Timeouts.DrainTimeoutMS = *payload.Timeouts.DrainTimeoutMS
		}
		if payload.Timeouts.OrderingTimeoutMS != nil {
			cfg.Timeouts.OrderingTimeoutMS = *payload.Timeouts.OrderingTimeoutMS
		}
	}

	if payload.ClipboardCmd != nil {
		raw := *payload.ClipboardCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid clipboard_cmd: %w", err)
		}
		cfg.Clipboard = CommandConfig{Raw: raw, Argv: argv}
	}

	return warnings, nil
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
