package trace

import (
	"time"

	log "github.com/rs/zerolog"
)

type EncoderOptions struct {
	lineNumbers bool
	category    string
	tempDir     string
	gzipLevel   int
	clock       func() time.Time

	logger log.Logger
}

type EncoderOpt func(*Encoder)

// WithEncoderLineNumbers makes frames compare and report by line too.
func WithEncoderLineNumbers(lineNumbers bool) EncoderOpt {
	return func(opts *Encoder) {
		opts.lineNumbers = lineNumbers
	}
}

func WithEncoderLogger(logger log.Logger) EncoderOpt {
	return func(opts *Encoder) {
		opts.logger = logger
	}
}

// WithEncoderTempDir sets where capture files are created.
// The default is the system temporary directory.
func WithEncoderTempDir(dir string) EncoderOpt {
	return func(opts *Encoder) {
		opts.tempDir = dir
	}
}

func WithEncoderCategory(category string) EncoderOpt {
	return func(opts *Encoder) {
		opts.category = category
	}
}

func WithEncoderClock(clock func() time.Time) EncoderOpt {
	return func(opts *Encoder) {
		opts.clock = clock
	}
}

func WithEncoderGzipLevel(level int) EncoderOpt {
	return func(opts *Encoder) {
		opts.gzipLevel = level
	}
}
