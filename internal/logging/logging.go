// Package logging builds the zerolog loggers used across tablehook: a
// human-readable console stream plus an append-only JSON file that the
// logs command can replay.
package logging

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFile is the log file used when none is configured.
const DefaultFile = "tablehook.log"

// Options configures New.
type Options struct {
	// Verbosity 0..3 maps to warn, info, debug and trace.
	Verbosity int

	// File is the JSON log file. Empty disables file logging.
	File string

	// Console receives the human-readable stream. Defaults to os.Stderr.
	Console io.Writer

	NoColor bool
}

// Level maps a verbosity count to a zerolog level.
func Level(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.WarnLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// New builds a logger writing to the console and, when opts.File is set, to
// the log file. The returned Closer closes the file; it is never nil.
//
// A log file that cannot be opened is reported on the console and logging
// continues there only.
func New(opts Options) (zerolog.Logger, io.Closer) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.Kitchen,
		NoColor:    opts.NoColor,
	}}

	var (
		closer  io.Closer = nopCloser{}
		fileErr error
	)
	if opts.File != "" {
		f, err := openLogFile(opts.File)
		if err != nil {
			fileErr = err
		} else {
			writers = append(writers, f)
			closer = f
		}
	}

	ctx := zerolog.New(io.MultiWriter(writers...)).
		Level(Level(opts.Verbosity)).
		With().
		Timestamp()
	if opts.Verbosity >= 2 {
		ctx = ctx.Caller()
	}
	logger := ctx.Logger()

	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("path", opts.File).Msg("failed to open log file, logging to console only")
	}
	logger.Debug().Int("verbosity", opts.Verbosity).Str("log_file", opts.File).Msg("logger initialized")
	return logger, closer
}

// Component returns l with a component field.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Replay renders the JSON log file at path to w in console form, one line
// per entry. Lines that are not JSON are copied through unchanged. It
// returns the number of entries written.
func Replay(path string, w io.Writer) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.DateTime,
		NoColor:    true,
	}

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if _, err := cw.Write(line); err != nil {
			if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
				return n, err
			}
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read log file: %w", err)
	}
	return n, nil
}
