package sim

import "github.com/pkg/errors"

var (
	// ErrInstanceCreation is returned when a device cannot be constructed.
	ErrInstanceCreation = errors.New("instance creation failed")

	// ErrInstanceDestroyed is returned when a destroyed instance is used.
	ErrInstanceDestroyed = errors.New("instance already destroyed")

	// ErrTraceAttached is returned when a second tracer is attached to an
	// instance.
	ErrTraceAttached = errors.New("instance already has a trace attached")

	// ErrUnknownDesign is returned when no design is registered under a name.
	ErrUnknownDesign = errors.New("unknown design")

	// ErrTimeOverflow is returned when a step timestamp does not fit in VTime.
	ErrTimeOverflow = errors.New("simulation time overflow")

	// ErrIDGeneratorInUse is returned when the ID generator type is changed
	// after IDs have been generated.
	ErrIDGeneratorInUse = errors.New("id generator already in use")
)
