// Package designs provides small reference designs that can be driven without
// an external simulation kernel. Importing the package registers them with
// sim.RegisterDesign.
package designs

import "github.com/sarchlab/simtrace/sim"

// Names of the built-in designs.
const (
	CounterName       = "counter"
	LFSRName          = "lfsr"
	ShiftRegisterName = "shiftreg"
)

func init() {
	sim.RegisterDesign(CounterName, NewCounter)
	sim.RegisterDesign(LFSRName, NewLFSR)
	sim.RegisterDesign(ShiftRegisterName, NewShiftRegister)
}
