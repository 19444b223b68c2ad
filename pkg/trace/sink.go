package trace

import (
	"encoding/json"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Sink is a compressed byte stream that must be closed to be complete.
type Sink interface {
	io.Writer
	Close() error
}

// zstdSink streams into a private temporary file. It is tuned for write
// throughput during capture.
type zstdSink struct {
	file *os.File
	enc  *zstd.Encoder
}

func newZstdSink(dir, pattern string) (*zstdSink, error) {
	file, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temporary trace file")
	}

	enc, err := zstd.NewWriter(file,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, errors.Wrap(err, "failed to create zstd encoder")
	}

	return &zstdSink{file: file, enc: enc}, nil
}

func (s *zstdSink) Write(p []byte) (int, error) {
	return s.enc.Write(p)
}

func (s *zstdSink) Close() error {
	if err := s.enc.Close(); err != nil {
		s.file.Close()
		return errors.Wrapf(err, "failed to finalize %s", s.file.Name())
	}
	return s.file.Close()
}

func (s *zstdSink) Name() string {
	return s.file.Name()
}

// gzipSink compresses into the caller's destination, it does not close it.
type gzipSink struct {
	*gzip.Writer
}

func newGzipSink(dst io.Writer, level int) (*gzipSink, error) {
	w, err := gzip.NewWriterLevel(dst, level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid gzip level %d", level)
	}

	return &gzipSink{Writer: w}, nil
}

var (
	_ Sink = (*zstdSink)(nil)
	_ Sink = (*gzipSink)(nil)
)

// eventWriter frames events as a single JSON array over a capture sink.
type eventWriter struct {
	sink    Sink
	path    string
	written uint64
	closed  bool
}

func newEventWriter(dir, pattern string) (*eventWriter, error) {
	sink, err := newZstdSink(dir, pattern)
	if err != nil {
		return nil, err
	}
	if _, err := sink.Write([]byte("[")); err != nil {
		sink.Close()
		os.Remove(sink.Name())
		return nil, errors.Wrap(err, "failed to start event array")
	}

	return &eventWriter{sink: sink, path: sink.Name()}, nil
}

func (w *eventWriter) writeEvents(events []Event) error {
	if w.closed {
		return ErrWriterClosed
	}
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return errors.Wrap(err, "failed to encode trace event")
		}
		if w.written > 0 {
			if _, err := w.sink.Write([]byte(",")); err != nil {
				return errors.Wrap(err, "failed to write trace event")
			}
		}
		if _, err := w.sink.Write(data); err != nil {
			return errors.Wrap(err, "failed to write trace event")
		}
		w.written++
	}

	return nil
}

// Close terminates the array and returns the path of the finished artifact.
func (w *eventWriter) Close() (string, error) {
	if w.closed {
		return "", ErrWriterClosed
	}
	w.closed = true

	if _, err := w.sink.Write([]byte("]\n")); err != nil {
		w.sink.Close()
		return w.path, errors.Wrap(err, "failed to terminate event array")
	}

	return w.path, w.sink.Close()
}

// discard closes the writer and removes its artifact.
func (w *eventWriter) discard() error {
	if !w.closed {
		w.closed = true
		w.sink.Close()
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove temporary trace file")
	}

	return nil
}

// drain re-encodes a finished zstd artifact as gzip into dst and removes it.
func drain(path string, dst io.Writer, level int) (err error) {
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && err == nil {
			err = errors.Wrap(rmErr, "failed to remove temporary trace file")
		}
	}()

	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open temporary trace file")
	}
	defer file.Close()

	dec, err := zstd.NewReader(file, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return errors.Wrap(err, "failed to create zstd decoder")
	}
	defer dec.Close()

	var gz Sink
	if gz, err = newGzipSink(dst, level); err != nil {
		return err
	}
	if _, err := io.Copy(gz, dec); err != nil {
		gz.Close()
		return errors.Wrap(err, "failed to transcode trace")
	}

	return errors.Wrap(gz.Close(), "failed to finalize gzip stream")
}
