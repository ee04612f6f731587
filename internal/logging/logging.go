// Package logging configures the daemon's structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Options controls logger construction.
type Options struct {
	Level    string // logrus level name; empty means "info"
	JSON     bool   // JSON formatter instead of text
	Dir      string // log directory; empty means stderr only
	ToStderr bool   // also mirror to stderr when writing to a file
}

// New builds a logger from options. When Dir is set, output goes to a
// date-stamped file inside it.
func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()

	level := opts.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if opts.Dir == "" {
		log.SetOutput(os.Stderr)
		return log, nil
	}

	filename := fmt.Sprintf("%s.log", time.Now().Format("2006-01-02"))
	path := filepath.Join(opts.Dir, filename)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	if opts.ToStderr {
		log.SetOutput(io.MultiWriter(f, os.Stderr))
	} else {
		log.SetOutput(f)
	}
	return log, nil
}

// ForComponent returns an entry tagged with a component name.
func ForComponent(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}

// Discard returns a logger that drops everything; used in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
