package config

import (
	"errors"
	"strings"
)

// Parse reads configuration content as a JSONC object.
//
// Empty content yields the base config unchanged. Anything else must start
// with `{`.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	if !strings.HasPrefix(trimmed, "{") {
		return Config{}, nil, errors.New("config must be a JSONC object starting with '{'")
	}

	return parseJSONC(content, base)
}
