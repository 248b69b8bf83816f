package builder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", nil},
		{"whitespace only", " \t ", nil},
		{"single flag", "-trimpath", []string{"-trimpath"}},
		{"several flags", "-trimpath  -v\t-x", []string{"-trimpath", "-v", "-x"}},
		{"double quoted ldflags", `-ldflags "-s -w -X main.version=1.0"`, []string{"-ldflags", "-s -w -X main.version=1.0"}},
		{"single quotes are literal", `-tags 'a b\n'`, []string{"-tags", `a b\n`}},
		{"escaped space", `-o my\ app`, []string{"-o", "my app"}},
		{"escaped quote in double quotes", `"say \"hi\""`, []string{`say "hi"`}},
		{"backslash kept in double quotes", `"C:\dir"`, []string{`C:\dir`}},
		{"empty quoted word", `-tags ""`, []string{"-tags", ""}},
		{"adjacent quoting", `-X'main.a=1'"b"`, []string{"-Xmain.a=1b"}},
		{"single quote inside double", `"it's"`, []string{"it's"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFlags(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestParseFlagsErrors(t *testing.T) {
	_, err := ParseFlags(`-ldflags "-s -w`)
	require.True(t, errors.Is(err, ErrUnclosedQuote))

	_, err = ParseFlags(`-tags 'x`)
	require.True(t, errors.Is(err, ErrUnclosedQuote))

	_, err = ParseFlags(`-v \`)
	require.True(t, errors.Is(err, ErrTrailingEscape))
}

func TestCommandLineRoundTrip(t *testing.T) {
	args := []string{"go", "build", "-ldflags", "-s -w", "-o", "it's here", "", `$HOME`}
	line := CommandLine(args)
	require.Equal(t, `go build -ldflags '-s -w' -o "it's here" '' '$HOME'`, line)

	back, err := ParseFlags(line)
	require.NoError(t, err)
	require.Equal(t, args, back)
}
