package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixWriterPrefixesCompleteLines(t *testing.T) {
	var out bytes.Buffer
	pw := NewPrefixWriter("[go] ", &out)

	n, err := pw.Write([]byte("first line\nsecond "))
	require.NoError(t, err)
	require.Equal(t, len("first line\nsecond "), n)
	require.Equal(t, "[go] first line\n", out.String())

	_, err = pw.Write([]byte("half\nthird"))
	require.NoError(t, err)
	require.Equal(t, "[go] first line\n[go] second half\n", out.String())

	require.NoError(t, pw.Flush())
	require.Equal(t, "[go] first line\n[go] second half\n[go] third\n", out.String())

	// Nothing left to flush.
	require.NoError(t, pw.Flush())
	require.Equal(t, 3, strings.Count(out.String(), "[go] "))
}

func TestResolveLevel(t *testing.T) {
	t.Setenv("FLAVOR_PIPELINE_LOG_LEVEL", "")
	t.Setenv("FLAVOR_LOG_LEVEL", "")
	t.Setenv("FLAVOR_JSON_LOG", "")

	require.Equal(t, Level{Name: "info", Source: "default"}, ResolveLevel(""))
	require.Equal(t, Level{Name: "trace", Source: "CLI --log-level"}, ResolveLevel("trace"))

	t.Setenv("FLAVOR_LOG_LEVEL", "warn")
	require.Equal(t, "warn", ResolveLevel("").Name)

	t.Setenv("FLAVOR_PIPELINE_LOG_LEVEL", "json:debug")
	lvl := ResolveLevel("")
	require.True(t, lvl.JSON)
	require.Equal(t, "debug", lvl.Name)
	require.Equal(t, "FLAVOR_PIPELINE_LOG_LEVEL", lvl.Source)

	require.Equal(t, Level{Name: "info", JSON: true, Source: "CLI --log-level"}, ResolveLevel("json"))
}

func TestNewLoggerWritesPrefixedLines(t *testing.T) {
	t.Setenv("FLAVOR_JSON_LOG", "")

	var out bytes.Buffer
	logger := NewLogger("pipeline-test", Level{Name: "debug"}, &out)
	logger.Debug("stage reached", "state", "Extracted")

	require.True(t, strings.HasPrefix(out.String(), LogPrefix))
	require.Contains(t, out.String(), "stage reached")
	require.Contains(t, out.String(), "state=Extracted")
}
