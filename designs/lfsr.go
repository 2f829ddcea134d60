package designs

import (
	"errors"

	"github.com/sarchlab/simtrace/sim"
)

// LFSR is a 16-bit Fibonacci linear feedback shift register with taps at bits
// 16, 14, 13 and 11. Each step shifts once.
//
// Plusargs:
//
//	+seed=N  non-zero initial state (default 0xACE1)
type LFSR struct {
	State    uint16
	Feedback bool
}

// NewLFSR builds an LFSR from plusargs. A zero seed is rejected because the
// register would never leave the all-zero state.
func NewLFSR(args []string) (sim.Device, error) {
	seed, err := sim.PlusArgUint(args, "seed", 0xACE1)
	if err != nil {
		return nil, err
	}

	if uint16(seed) == 0 {
		return nil, errors.New("lfsr seed must be non-zero in its low 16 bits")
	}

	l := &LFSR{State: uint16(seed)}
	l.Feedback = l.feedback()

	return l, nil
}

func (l *LFSR) feedback() bool {
	s := l.State
	bit := (s ^ (s >> 2) ^ (s >> 3) ^ (s >> 5)) & 1

	return bit == 1
}

// Eval shifts the register once.
func (l *LFSR) Eval() error {
	var in uint16
	if l.feedback() {
		in = 1
	}

	l.State = (l.State >> 1) | (in << 15)
	l.Feedback = l.feedback()

	return nil
}

// Trace declares the LFSR signals.
func (l *LFSR) Trace(r sim.SignalRegistry, _ int) {
	scope := []string{"top", "lfsr"}

	r.Declare(sim.Probe{Scope: scope, Name: "state", Width: 16,
		Value: func() uint64 { return uint64(l.State) }})
	r.Declare(sim.Probe{Scope: scope, Name: "fb", Width: 1,
		Value: func() uint64 { return boolBit(l.Feedback) }})
}
