package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where process logs are written.
type Options struct {
	Prefix     string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New returns a logger writing to stdout and, when File is set, to a rotating
// log file. The returned closer must be closed on shutdown.
func New(opts Options) (*log.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}

	return log.New(out, opts.Prefix, log.LstdFlags|log.Lshortfile), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
