package tracing

import "github.com/pkg/errors"

var (
	// ErrSinkOpen is returned when the trace destination cannot be opened.
	ErrSinkOpen = errors.New("cannot open trace sink")

	// ErrMonotonicity is returned when a dump timestamp is not strictly
	// greater than the previous one.
	ErrMonotonicity = errors.New("trace timestamps must be strictly increasing")

	// ErrInvalidTransition is returned when a session operation is called in
	// the wrong state.
	ErrInvalidTransition = errors.New("invalid trace session transition")

	// ErrTracingDisabled is returned when a session is attached before the
	// process-wide trace capability is enabled.
	ErrTracingDisabled = errors.New("tracing is not enabled")

	// ErrInvalidDepth is returned when the trace depth is not positive.
	ErrInvalidDepth = errors.New("trace depth must be positive")
)
