// Package logging builds the run logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultFile is the log file used when none is given.
	DefaultFile = "shapeaudit.log"

	// Stderr as a log file name sends log lines to standard error.
	Stderr = "-"

	maxSizeMB  = 150
	maxBackups = 5
)

// New returns a logger writing to path at the given level. An empty level
// means info. The returned closer releases the log file.
func New(path, level string) (*logrus.Logger, io.Closer, error) {
	lvl := logrus.InfoLevel
	if level != "" {
		var err error
		lvl, err = logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	var out io.WriteCloser
	switch path {
	case Stderr:
		out = nopCloser{os.Stderr}
	default:
		if path == "" {
			path = DefaultFile
		}
		// lumberjack opens lazily; probe the path up front.
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		f.Close()
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
		}
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		DisableColors:   path != Stderr,
	})
	return l, out, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
