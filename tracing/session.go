package tracing

import (
	"errors"
	"fmt"

	"github.com/sarchlab/simtrace/sim"
)

// State is the lifecycle state of a Session.
type State int

// A session moves through the states in order and never leaves StateClosed.
const (
	StateUnattached State = iota
	StateAttached
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateAttached:
		return "attached"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Traceable is what a session attaches to.
type Traceable interface {
	AttachTrace(r sim.SignalRegistry, depth int) error
}

// A Session records the signals of one instance into one sink.
type Session struct {
	id    string
	sink  Sink
	state State

	depth   int
	signals []Signal
	probes  []sim.Probe
	dropped int
	values  []uint64

	dumped bool
	last   sim.VTime
	frames uint64
}

// NewSession creates an unattached session that writes into sink.
func NewSession(sink Sink) *Session {
	return &Session{
		id:   sim.GetIDGenerator().Generate(),
		sink: sink,
	}
}

// ID returns the unique ID of the session.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Depth returns the depth the session was attached with.
func (s *Session) Depth() int {
	return s.depth
}

// Signals returns the signals captured by the session.
func (s *Session) Signals() []Signal {
	return s.signals
}

// Dropped returns the number of probes ignored because they were deeper than
// the trace depth.
func (s *Session) Dropped() int {
	return s.dropped
}

// Frames returns the number of frames dumped so far.
func (s *Session) Frames() uint64 {
	return s.frames
}

// LastTimestamp returns the timestamp of the last dump, and false if nothing
// has been dumped.
func (s *Session) LastTimestamp() (sim.VTime, bool) {
	return s.last, s.dumped
}

func (s *Session) mustBeIn(op string, want State) error {
	if s.state != want {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, op, s.state)
	}

	return nil
}

// Attach binds the session to target. Only signals at most depth hierarchy
// levels deep are captured.
func (s *Session) Attach(target Traceable, depth int) error {
	if err := s.mustBeIn("attach", StateUnattached); err != nil {
		return err
	}

	if !TracingEnabled() {
		return ErrTracingDisabled
	}

	if depth <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}

	r := newSignalRegistry(depth)

	err := target.AttachTrace(r, depth)
	if err != nil {
		return err
	}

	if len(r.errs) > 0 {
		return errors.Join(r.errs...)
	}

	s.depth = depth
	s.signals = r.signals
	s.probes = r.probes
	s.dropped = r.dropped
	s.values = make([]uint64, len(r.probes))
	s.state = StateAttached

	return nil
}

// Open opens the sink at path. On failure the session stays attached and no
// trace is produced.
func (s *Session) Open(path string) error {
	if err := s.mustBeIn("open", StateAttached); err != nil {
		return err
	}

	err := s.sink.Open(Header{
		SessionID: s.id,
		Path:      path,
		Signals:   s.signals,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSinkOpen, path, err)
	}

	s.state = StateOpen

	return nil
}

// Dump samples every signal and appends a frame at time t. The time must be
// strictly greater than the time of the previous dump.
func (s *Session) Dump(t sim.VTime) error {
	if err := s.mustBeIn("dump", StateOpen); err != nil {
		return err
	}

	if s.dumped && t <= s.last {
		return fmt.Errorf("%w: %d after %d", ErrMonotonicity, t, s.last)
	}

	for i, p := range s.probes {
		s.values[i] = p.Value() & s.signals[i].Mask()
	}

	err := s.sink.WriteFrame(Frame{Time: t, Values: s.values})
	if err != nil {
		return fmt.Errorf("dump at %d: %w", t, err)
	}

	s.dumped = true
	s.last = t
	s.frames++

	return nil
}

// Close flushes and closes the sink. The session is closed even if the sink
// reports an error.
func (s *Session) Close() error {
	if err := s.mustBeIn("close", StateOpen); err != nil {
		return err
	}

	s.state = StateClosed

	err := s.sink.Close()
	if err != nil {
		return fmt.Errorf("close trace: %w", err)
	}

	return nil
}
