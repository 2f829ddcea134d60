package designs

import (
	"fmt"

	"github.com/sarchlab/simtrace/sim"
)

// Counter is a free-running up counter. Each step is one rising clock edge.
// The counter core sits one level below the top so that the trace depth has
// something to cut.
//
// Plusargs:
//
//	+width=N  counter width in bits (1..64, default 8)
//	+start=N  initial count (default 0)
//	+hold=N   keep the counter disabled for the first N steps (default 0)
type Counter struct {
	width uint
	hold  uint64
	steps uint64

	Enable bool
	Count  uint64
	Next   uint64
	Carry  bool
}

// NewCounter builds a Counter from plusargs.
func NewCounter(args []string) (sim.Device, error) {
	width, err := sim.PlusArgUint(args, "width", 8)
	if err != nil {
		return nil, err
	}

	if width < 1 || width > 64 {
		return nil, fmt.Errorf("counter width must be 1..64, got %d", width)
	}

	start, err := sim.PlusArgUint(args, "start", 0)
	if err != nil {
		return nil, err
	}

	hold, err := sim.PlusArgUint(args, "hold", 0)
	if err != nil {
		return nil, err
	}

	c := &Counter{
		width: uint(width),
		hold:  hold,
		Count: start & mask(uint(width)),
	}
	c.settle()

	return c, nil
}

func mask(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}

	return (uint64(1) << width) - 1
}

func (c *Counter) settle() {
	c.Enable = c.steps >= c.hold

	m := mask(c.width)
	c.Next = (c.Count + 1) & m
	c.Carry = c.Count == m
}

// Eval clocks the counter once.
func (c *Counter) Eval() error {
	c.settle()

	if c.Enable {
		c.Count = c.Next
	}

	c.steps++
	c.settle()

	return nil
}

// Trace declares the counter signals.
func (c *Counter) Trace(r sim.SignalRegistry, _ int) {
	top := []string{"top"}
	core := []string{"top", "core"}
	w := int(c.width)

	r.Declare(sim.Probe{Scope: top, Name: "en", Width: 1,
		Value: func() uint64 { return boolBit(c.Enable) }})
	r.Declare(sim.Probe{Scope: top, Name: "count", Width: w,
		Value: func() uint64 { return c.Count }})
	r.Declare(sim.Probe{Scope: core, Name: "next", Width: w,
		Value: func() uint64 { return c.Next }})
	r.Declare(sim.Probe{Scope: core, Name: "carry", Width: 1,
		Value: func() uint64 { return boolBit(c.Carry) }})
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}
