package designs

import (
	"fmt"

	"github.com/sarchlab/simtrace/sim"
)

// ShiftRegister is an 8-bit serial-in parallel-out shift register. The serial
// input repeats a bit pattern, one bit per step.
//
// Plusargs:
//
//	+pattern=BITS  input pattern of 0 and 1 characters (default 1011)
type ShiftRegister struct {
	pattern []bool
	pos     int

	In bool
	Q  uint8
}

// NewShiftRegister builds a ShiftRegister from plusargs.
func NewShiftRegister(args []string) (sim.Device, error) {
	pattern, ok := sim.PlusArg(args, "pattern")
	if !ok {
		pattern = "1011"
	}

	if pattern == "" {
		return nil, fmt.Errorf("shift register pattern cannot be empty")
	}

	s := &ShiftRegister{}

	for _, c := range pattern {
		switch c {
		case '0':
			s.pattern = append(s.pattern, false)
		case '1':
			s.pattern = append(s.pattern, true)
		default:
			return nil, fmt.Errorf("shift register pattern %q: bad bit %q",
				pattern, c)
		}
	}

	s.In = s.pattern[0]

	return s, nil
}

// Eval shifts the current input bit into the register and moves to the next
// bit of the pattern.
func (s *ShiftRegister) Eval() error {
	s.Q = s.Q<<1 | uint8(boolBit(s.In))

	s.pos = (s.pos + 1) % len(s.pattern)
	s.In = s.pattern[s.pos]

	return nil
}

// Trace declares the shift register signals.
func (s *ShiftRegister) Trace(r sim.SignalRegistry, _ int) {
	top := []string{"top"}

	r.Declare(sim.Probe{Scope: top, Name: "din", Width: 1,
		Value: func() uint64 { return boolBit(s.In) }})
	r.Declare(sim.Probe{Scope: top, Name: "q", Width: 8,
		Value: func() uint64 { return uint64(s.Q) }})
}
