// SPDX-License-Identifier: Apache-2.0
package builder

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrUnclosedQuote  = errors.New("unclosed quote in build flags")
	ErrTrailingEscape = errors.New("trailing escape character in build flags")
)

// ParseFlags splits extra build flags the way a POSIX shell splits words:
// whitespace separates, single quotes are literal, double quotes allow
// backslash escapes of " \ $ and `, and a bare backslash escapes anything.
//
//	ParseFlags(`-trimpath -ldflags "-s -w -X main.version=1.0"`)
//	  => ["-trimpath", "-ldflags", "-s -w -X main.version=1.0"]
func ParseFlags(input string) ([]string, error) {
	var (
		words  []string
		word   strings.Builder
		quote  rune
		quoted bool // an empty "" still yields a word
	)
	flush := func() {
		if word.Len() > 0 || quoted {
			words = append(words, word.String())
			word.Reset()
			quoted = false
		}
	}

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '\\' && quote != '\'':
			if i+1 >= len(runes) {
				return nil, ErrTrailingEscape
			}
			i++
			next := runes[i]
			if quote == '"' && !strings.ContainsRune("\"\\$`", next) {
				word.WriteRune('\\')
			}
			word.WriteRune(next)
		case (ch == '\'' || ch == '"') && quote == 0:
			quote = ch
		case ch == quote:
			quote = 0
			quoted = true
		case unicode.IsSpace(ch) && quote == 0:
			flush()
		default:
			word.WriteRune(ch)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: missing closing %c", ErrUnclosedQuote, quote)
	}
	flush()
	return words, nil
}

// CommandLine renders args for logs, quoting words a shell would split.
func CommandLine(args []string) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = shellQuote(arg)
	}
	return strings.Join(parts, " ")
}

func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsFunc(arg, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("'\"\\$`", r)
	}) {
		return arg
	}
	if !strings.Contains(arg, "'") {
		return "'" + arg + "'"
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range arg {
		if strings.ContainsRune("\"\\$`", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
