// Package logging builds the hclog loggers used by every pipeline component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
)

// LogPrefix marks every non-JSON log line written by the pipeline.
const LogPrefix = "🐹 "

// Level is a resolved log level together with where it came from.
type Level struct {
	Name   string
	JSON   bool
	Source string
}

// ResolveLevel picks the log level from the CLI flag, then
// FLAVOR_PIPELINE_LOG_LEVEL, then FLAVOR_LOG_LEVEL, defaulting to info.
// A "json" or "json:<level>" value switches to JSON output.
func ResolveLevel(cliLevel string) Level {
	lvl := Level{Name: "info", Source: "default"}

	switch {
	case cliLevel != "":
		lvl.Name, lvl.Source = cliLevel, "CLI --log-level"
	case os.Getenv("FLAVOR_PIPELINE_LOG_LEVEL") != "":
		lvl.Name, lvl.Source = os.Getenv("FLAVOR_PIPELINE_LOG_LEVEL"), "FLAVOR_PIPELINE_LOG_LEVEL"
	case os.Getenv("FLAVOR_LOG_LEVEL") != "":
		lvl.Name, lvl.Source = os.Getenv("FLAVOR_LOG_LEVEL"), "FLAVOR_LOG_LEVEL"
	}

	if strings.HasPrefix(lvl.Name, "json") {
		lvl.JSON = true
		if _, after, ok := strings.Cut(lvl.Name, ":"); ok && after != "" {
			lvl.Name = after
		} else {
			lvl.Name = "info"
		}
	}
	if os.Getenv("FLAVOR_JSON_LOG") == "1" {
		lvl.JSON = true
	}
	return lvl
}

// NewLogger creates a new hclog logger with standard settings
func NewLogger(name string, level Level, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
		if logPath := os.Getenv("FLAVOR_LOG_PATH"); logPath != "" {
			if file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				output = file
			}
		}
	}

	color := hclog.ColorOff
	if f, ok := output.(*os.File); ok && !level.JSON && isatty.IsTerminal(f.Fd()) {
		color = hclog.AutoColor
	}

	if !level.JSON {
		output = NewPrefixWriter(LogPrefix, output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level.Name),
		JSONFormat: level.JSON,
		Output:     output,
		Color:      color,
		TimeFormat: "2006-01-02T15:04:05Z", // UTC ISO format
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}
