// Package sim defines the device instance that a simulation drives, the
// capabilities a simulated design must provide, and the small set of
// primitives (time, hooks, IDs) shared by the other packages.
package sim

// An Evaluator advances a simulated design by exactly one step. What a step
// means (a combinational settle, a clock edge, ...) is decided by the design.
type Evaluator interface {
	Eval() error
}

// A TraceAttacher can expose its internal signals to a tracer. Signals whose
// scope is deeper than depth levels should not be declared, but a tracer
// filters them anyway.
type TraceAttacher interface {
	Trace(r SignalRegistry, depth int)
}

// A Device is one instantiation of a simulated hardware design.
type Device interface {
	Evaluator
	TraceAttacher
}

// A Finalizer is a Device that holds resources that must be released when the
// instance is destroyed.
type Finalizer interface {
	Final() error
}

// A DeviceFactory creates a Device. The args are the pass-through command line
// arguments; the factory may read plusargs from them.
type DeviceFactory func(args []string) (Device, error)

// A Probe is one observable signal of a Device.
type Probe struct {
	// Scope is the module hierarchy from the top, e.g. {"top", "alu"}.
	Scope []string

	// Name is the signal name inside the scope.
	Name string

	// Width is the number of bits, between 1 and 64.
	Width int

	// Value samples the current value of the signal. Only the lowest Width
	// bits are used.
	Value func() uint64
}

// Level returns how many hierarchy levels deep the probe is. A probe directly
// under the top scope is at level 1.
func (p Probe) Level() int {
	if len(p.Scope) == 0 {
		return 1
	}

	return len(p.Scope)
}

// SignalRegistry collects the probes that a device exposes.
type SignalRegistry interface {
	Declare(p Probe)
}

// StepInfo describes a step that has been evaluated and dumped.
type StepInfo struct {
	Index uint64
	Total uint64
	Time  VTime

	Instance *Instance
}
