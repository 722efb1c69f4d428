package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvVar names the environment variable holding a log spec.
const EnvVar = "HIDBPF_LOG"

// Format is the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses "text" (or empty) and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %q", s)
	}
}

// Options configures New.
type Options struct {
	// CLISpec is the spec from the command line (highest precedence).
	CLISpec string
	// EnvSpec is the spec from EnvVar.
	EnvSpec string
	// ConfigSpec is the spec from the config file (lowest precedence).
	ConfigSpec string
	// DefaultLevel is the base level when no spec sets one.
	DefaultLevel Level
	Format       Format
	// Output defaults to os.Stderr; stdout is kept for command output.
	Output io.Writer
}

// New creates a logger with component-level filtering. The first
// non-empty spec of CLISpec, EnvSpec and ConfigSpec is used.
func New(opts Options) (*slog.Logger, error) {
	var specStr string
	for _, s := range []string{opts.CLISpec, opts.EnvSpec, opts.ConfigSpec} {
		if strings.TrimSpace(s) != "" {
			specStr = s
			break
		}
	}

	spec, err := ParseSpec(specStr, opts.DefaultLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log spec: %w", err)
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	// The filtering handler decides; the inner handler takes everything.
	handlerOpts := &slog.HandlerOptions{Level: LevelTrace.ToSlog()}

	var inner slog.Handler
	switch opts.Format {
	case FormatJSON:
		inner = slog.NewJSONHandler(output, handlerOpts)
	default:
		inner = slog.NewTextHandler(output, handlerOpts)
	}

	return slog.New(NewFilteringHandler(inner, &spec)), nil
}

// Discard returns a logger that writes nothing.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
