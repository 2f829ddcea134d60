package tracing

import "sync"

var (
	capabilityMu   sync.Mutex
	tracingEnabled bool
)

// EnableTracing turns on the process-wide trace capability. It must be called
// before any session is attached to an instance. Only the first call has an
// effect; later calls are no-ops. It reports whether this call enabled it.
func EnableTracing() bool {
	capabilityMu.Lock()
	defer capabilityMu.Unlock()

	if tracingEnabled {
		return false
	}

	tracingEnabled = true

	return true
}

// TracingEnabled tells if EnableTracing has been called.
func TracingEnabled() bool {
	capabilityMu.Lock()
	defer capabilityMu.Unlock()

	return tracingEnabled
}
