package tracing

import (
	"fmt"
	"strings"

	"github.com/sarchlab/simtrace/sim"
)

// A Signal is a probe accepted into a trace session.
type Signal struct {
	// Index is the position of the signal in every Frame's Values.
	Index int
	Scope []string
	Name  string
	Width int
}

// FullName returns the dotted hierarchical name of the signal.
func (s Signal) FullName() string {
	if len(s.Scope) == 0 {
		return s.Name
	}

	return strings.Join(s.Scope, ".") + "." + s.Name
}

// Mask returns the bit mask that covers the width of the signal.
func (s Signal) Mask() uint64 {
	if s.Width >= 64 {
		return ^uint64(0)
	}

	return (uint64(1) << s.Width) - 1
}

// signalRegistry receives probe declarations from a device and drops the
// probes deeper than the trace depth.
type signalRegistry struct {
	depth   int
	signals []Signal
	probes  []sim.Probe
	names   map[string]bool
	dropped int
	errs    []error
}

func newSignalRegistry(depth int) *signalRegistry {
	return &signalRegistry{
		depth: depth,
		names: make(map[string]bool),
	}
}

func (r *signalRegistry) Declare(p sim.Probe) {
	if p.Level() > r.depth {
		r.dropped++
		return
	}

	s := Signal{
		Index: len(r.signals),
		Scope: append([]string(nil), p.Scope...),
		Name:  p.Name,
		Width: p.Width,
	}

	switch {
	case p.Name == "":
		r.errs = append(r.errs, fmt.Errorf("probe in scope %q has no name",
			strings.Join(p.Scope, ".")))
		return
	case p.Width < 1 || p.Width > 64:
		r.errs = append(r.errs, fmt.Errorf("probe %s has width %d",
			s.FullName(), p.Width))
		return
	case p.Value == nil:
		r.errs = append(r.errs, fmt.Errorf("probe %s has no value function",
			s.FullName()))
		return
	case r.names[s.FullName()]:
		r.errs = append(r.errs, fmt.Errorf("probe %s declared twice",
			s.FullName()))
		return
	}

	r.names[s.FullName()] = true
	r.signals = append(r.signals, s)
	r.probes = append(r.probes, p)
}
