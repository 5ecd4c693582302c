package config

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger creates a [log.Logger] from c, with timestamps enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(c LogConfig, w io.Writer) (*log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	level := log.InfoLevel
	if c.Level != "" {
		l, err := log.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		level = l
	}

	formatter := log.TextFormatter
	switch c.Format {
	case "", "text":
	case "json":
		formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("invalid log format %q", c.Format)
	}

	opts := log.Options{
		ReportTimestamp: true,
		ReportCaller:    c.Caller,
		Level:           level,
		Formatter:       formatter,
		Prefix:          "soundify",
	}
	return log.NewWithOptions(w, opts), nil
}
