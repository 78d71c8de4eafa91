// Package logging builds the named hclog loggers used across the module.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// New creates a logger writing to stderr. Stdout stays free for the MCP
// stdio transport.
func New(name, level string) hclog.Logger {
	return NewWithOutput(name, level, os.Stderr)
}

// NewWithOutput creates a logger writing to w
func NewWithOutput(name, level string, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Output: w,
		Level:  ParseLevel(level),
	})
}

// ParseLevel maps a level name to an hclog level, defaulting to Info
func ParseLevel(level string) hclog.Level {
	l := hclog.LevelFromString(strings.TrimSpace(level))
	if l == hclog.NoLevel {
		return hclog.Info
	}
	return l
}

// OrNull returns l, or a discarding logger when l is nil
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
