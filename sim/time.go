package sim

import (
	"math/bits"

	"fortio.org/safecast"
	"github.com/pkg/errors"
)

// VTime is a simulation timestamp in time units of the trace timescale.
type VTime uint64

// StepTime returns the timestamp of step i when each step lasts scale time
// units. It fails instead of wrapping around when the product overflows.
func StepTime(i int, scale VTime) (VTime, error) {
	step, err := safecast.Conv[uint64](i)
	if err != nil {
		return 0, errors.Wrapf(err, "step %d", i)
	}

	hi, lo := bits.Mul64(step, uint64(scale))
	if hi != 0 {
		return 0, errors.Wrapf(ErrTimeOverflow, "step %d x scale %d", i, scale)
	}

	return VTime(lo), nil
}

// LastStepTime returns the timestamp of the last of n steps. It reports
// whether there is any step at all.
func LastStepTime(n int, scale VTime) (VTime, bool, error) {
	if n <= 0 {
		return 0, false, nil
	}

	t, err := StepTime(n-1, scale)
	if err != nil {
		return 0, true, err
	}

	return t, true, nil
}
