package tracing

import (
	"errors"

	"github.com/sarchlab/simtrace/sim"
)

// Header describes a trace when its sink is opened.
type Header struct {
	SessionID string
	Path      string
	Signals   []Signal
}

// A Frame is the state of every signal at one timestamp.
type Frame struct {
	Time sim.VTime

	// Values are indexed by Signal.Index. A sink must not keep the slice
	// after WriteFrame returns.
	Values []uint64
}

// A Sink persists a trace in some format.
type Sink interface {
	// Open creates the destination and writes whatever preamble the format
	// needs.
	Open(h Header) error

	// WriteFrame appends one frame.
	WriteFrame(f Frame) error

	// Close flushes and releases the destination.
	Close() error
}

// A Discarder is a Sink that can undo an Open, removing what it created at
// the destination.
type Discarder interface {
	Discard() error
}

// Discard releases s. Sinks that are Discarders also remove what they created.
func Discard(s Sink) error {
	if d, ok := s.(Discarder); ok {
		return d.Discard()
	}

	return s.Close()
}

// MultiSink fans a trace out to several sinks.
type MultiSink struct {
	sinks  []Sink
	opened []Sink
}

// NewMultiSink creates a sink that forwards to all the given sinks in order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Open opens every sink in order. If one fails, the sinks already opened are
// discarded so that no partial trace is left behind.
func (m *MultiSink) Open(h Header) error {
	for _, s := range m.sinks {
		err := s.Open(h)
		if err != nil {
			return errors.Join(err, m.Discard())
		}

		m.opened = append(m.opened, s)
	}

	return nil
}

// WriteFrame writes the frame to every open sink and stops at the first error.
func (m *MultiSink) WriteFrame(f Frame) error {
	for _, s := range m.opened {
		err := s.WriteFrame(f)
		if err != nil {
			return err
		}
	}

	return nil
}

// Close closes every open sink, even if some of them fail.
func (m *MultiSink) Close() error {
	var errs []error

	for _, s := range m.opened {
		errs = append(errs, s.Close())
	}

	m.opened = nil

	return errors.Join(errs...)
}

// Discard discards every open sink.
func (m *MultiSink) Discard() error {
	var errs []error

	for _, s := range m.opened {
		errs = append(errs, Discard(s))
	}

	m.opened = nil

	return errors.Join(errs...)
}
