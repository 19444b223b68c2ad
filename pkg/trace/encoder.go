package trace

import (
	"io"
	"slices"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/maxgio92/xspy/internal/settings"
)

// Encoder turns per-thread stack samples into begin/end duration events.
// It is not safe for concurrent use, except for Stats.
type Encoder struct {
	writer *eventWriter
	start  time.Time
	// prevTraces holds the last stack of every thread with open frames.
	prevTraces  map[uint64]StackTrace
	threadsSeen map[uint64]struct{}

	samples     atomic.Uint64
	events      atomic.Uint64
	consumed    atomic.Uint64
	openThreads atomic.Int64
	seen        atomic.Int64
	flushes     atomic.Uint64

	closed bool

	*EncoderOptions
}

// Stats is a snapshot of the encoder counters.
type Stats struct {
	Samples     uint64 `json:"samples"`
	Events      uint64 `json:"events"`
	OpenThreads int    `json:"open_threads"`
	ThreadsSeen int    `json:"threads_seen"`
	Flushes     uint64 `json:"flushes"`
}

func NewEncoder(opts ...EncoderOpt) (*Encoder, error) {
	enc := &Encoder{
		prevTraces:  make(map[uint64]StackTrace),
		threadsSeen: make(map[uint64]struct{}),
		EncoderOptions: &EncoderOptions{
			category:  DefaultCategory,
			gzipLevel: gzip.DefaultCompression,
			clock:     time.Now,
			logger:    log.Nop(),
		},
	}
	for _, opt := range opts {
		opt(enc)
	}
	enc.logger = enc.logger.With().Str("component", "encoder").Logger()

	if _, err := gzip.NewWriterLevel(io.Discard, enc.gzipLevel); err != nil {
		return nil, errors.Wrapf(ErrInvalidGzipLevel, "%d", enc.gzipLevel)
	}

	writer, err := newEventWriter(enc.tempDir, settings.TracePattern)
	if err != nil {
		return nil, err
	}
	enc.writer = writer
	enc.start = enc.clock()

	enc.logger.Debug().Str("path", writer.path).Msg("trace session started")

	return enc, nil
}

// Increment records one batch of samples, at most one per thread, taken
// at the same instant. Threads missing from the batch are ended.
func (e *Encoder) Increment(traces []StackTrace) error {
	if e.closed {
		return ErrEncoderClosed
	}
	ts := e.timestamp()

	var events []Event
	current := make(map[uint64]struct{}, len(traces))
	for _, trace := range traces {
		current[trace.ThreadID] = struct{}{}
		e.threadsSeen[trace.ThreadID] = struct{}{}

		var dropped, added []Frame
		if prev, ok := e.prevTraces[trace.ThreadID]; ok {
			dropped, added = DiffFrames(prev.Frames, trace.Frames, e.lineNumbers)
		} else {
			added = trace.Frames
		}

		// Innermost first.
		for _, frame := range dropped {
			events = append(events, e.event(PhaseEnd, trace, frame, ts))
		}
		// Root to leaf.
		for i := len(added) - 1; i >= 0; i-- {
			events = append(events, e.event(PhaseBegin, trace, added[i], ts))
		}

		if len(trace.Frames) == 0 {
			delete(e.prevTraces, trace.ThreadID)
			continue
		}
		e.prevTraces[trace.ThreadID] = trace
	}

	vanished := lo.Filter(lo.Keys(e.prevTraces), func(tid uint64, _ int) bool {
		_, ok := current[tid]
		return !ok
	})
	slices.Sort(vanished)
	for _, tid := range vanished {
		events = append(events, e.endAll(e.prevTraces[tid], ts)...)
		delete(e.prevTraces, tid)
	}

	e.samples.Add(uint64(len(traces)))
	e.openThreads.Store(int64(len(e.prevTraces)))
	e.seen.Store(int64(len(e.threadsSeen)))

	return e.emit(events)
}

// Write ends every open frame, then writes the session as a gzip
// compressed JSON array to w. Capture restarts with an empty timeline.
func (e *Encoder) Write(w io.Writer) error {
	if e.closed {
		return ErrEncoderClosed
	}
	ts := e.timestamp()

	// A failed flush leaves the session untouched.
	next, err := newEventWriter(e.tempDir, settings.TracePattern)
	if err != nil {
		return err
	}

	var events []Event
	for _, tid := range e.threadIDs() {
		events = append(events, e.endAll(e.prevTraces[tid], ts)...)
	}
	if err := e.emit(events); err != nil {
		next.discard()
		return err
	}

	prev := e.writer
	e.writer = next
	e.reset()

	path, err := prev.Close()
	if err != nil {
		prev.discard()
		return err
	}
	if err := drain(path, w, e.gzipLevel); err != nil {
		return err
	}
	e.flushes.Add(1)

	e.logger.Debug().
		Uint64("events", prev.written).
		Str("path", next.path).
		Msg("trace session flushed")

	return nil
}

// Close discards the current session.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.prevTraces = make(map[uint64]StackTrace)
	e.openThreads.Store(0)

	return e.writer.discard()
}

func (e *Encoder) Stats() Stats {
	return Stats{
		Samples:     e.samples.Load(),
		Events:      e.events.Load(),
		OpenThreads: int(e.openThreads.Load()),
		ThreadsSeen: int(e.seen.Load()),
		Flushes:     e.flushes.Load(),
	}
}

func (e *Encoder) reset() {
	e.start = e.clock()
	e.prevTraces = make(map[uint64]StackTrace)
	e.openThreads.Store(0)
}

func (e *Encoder) emit(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := e.writer.writeEvents(events); err != nil {
		return errors.Wrap(err, "failed to record trace events")
	}
	e.events.Add(uint64(len(events)))
	e.consumed.Add(uint64(len(events)))

	return nil
}

// endAll ends every frame of trace, innermost first.
func (e *Encoder) endAll(trace StackTrace, ts uint64) []Event {
	events := make([]Event, 0, len(trace.Frames))
	for _, frame := range trace.Frames {
		events = append(events, e.event(PhaseEnd, trace, frame, ts))
	}

	return events
}

func (e *Encoder) threadIDs() []uint64 {
	tids := lo.Keys(e.prevTraces)
	slices.Sort(tids)

	return tids
}

func (e *Encoder) event(ph string, trace StackTrace, frame Frame, ts uint64) Event {
	event := Event{
		Args: EventArgs{Filename: frame.Filename},
		Cat:  e.category,
		Name: frame.Name,
		Ph:   ph,
		PID:  uint64(trace.PID),
		TID:  trace.ThreadID,
		TS:   ts,
	}
	if e.lineNumbers {
		line := frame.Line
		event.Args.Line = &line
	}

	return event
}

// timestamp returns the microseconds elapsed since the session start.
func (e *Encoder) timestamp() uint64 {
	elapsed := e.clock().Sub(e.start)
	if elapsed < 0 {
		return 0
	}

	return uint64(elapsed.Microseconds())
}
