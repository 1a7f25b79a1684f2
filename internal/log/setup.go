package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures the root logger built by New, mirroring the flags
// psrp-client's main.go used to build its own *slog.Logger by hand
// (level + text/json handler choice), generalized to also wire the
// RotatingFile sink and RedactingHandler wrapper from this package.
type Options struct {
	Level  string
	Format string // "text" or "json"
	File   string // optional path; empty disables file output
}

// New builds the process-wide logger. Output always goes through
// RedactingHandler so attribute values that look like credentials never
// reach stderr/file, matching the redaction concern this package already
// implements for psrp-client.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var closer io.Closer = noopCloser{}
	writers := []io.Writer{os.Stderr}

	if opts.File != "" {
		rf, err := NewRotatingFile(opts.File, 10*1024*1024, 5)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, rf)
		closer = rf
	}

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	out := io.MultiWriter(writers...)

	var base slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		base = slog.NewJSONHandler(out, handlerOpts)
	} else {
		base = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(NewRedactingHandler(base)), closer, nil
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
