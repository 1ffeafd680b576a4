package config

import (
	"fmt"
	"strings"
	"unicode"
)

// parseArgv splits a clipboard_cmd value into an exec argv using shell-like
// rules: whitespace separates words, single and double quotes group them, and
// backslash escapes the next rune. A blank or #-commented value disables the
// external command.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv      []string
		word      strings.Builder
		openQuote rune
		escaped   bool
	)

	emit := func() {
		if word.Len() == 0 {
			return
		}
		argv = append(argv, word.String())
		word.Reset()
	}

	for _, r := range input {
		switch {
		case escaped:
			word.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case openQuote != 0:
			if r == openQuote {
				openQuote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '\'' || r == '"':
			openQuote = r
		case unicode.IsSpace(r):
			emit()
		default:
			word.WriteRune(r)
		}
	}

	if escaped {
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	}
	if openQuote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}

	emit()
	return argv, nil
}

// mustParseArgv is for compiled-in defaults, where a parse failure is a bug.
func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}
