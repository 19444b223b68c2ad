package trace

import (
	"github.com/pkg/errors"
)

var (
	ErrWriterClosed     = errors.New("event writer is closed")
	ErrEncoderClosed    = errors.New("encoder is closed")
	ErrInvalidGzipLevel = errors.New("invalid gzip compression level")
)
