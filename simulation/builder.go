package simulation

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/sarchlab/simtrace/sim"
	"github.com/sarchlab/simtrace/tracing"
	"github.com/sarchlab/simtrace/vcd"
)

// Builder can be used to build a driver.
type Builder struct {
	design    string
	factory   sim.DeviceFactory
	args      []string
	steps     int
	scale     sim.VTime
	depth     int
	output    string
	timescale vcd.Timescale
	version   string

	sink   tracing.Sink
	extras []tracing.Sink
	hooks  []sim.Hook
	logger *slog.Logger
}

// MakeBuilder creates a builder with the reference parameters: 20 steps, 10
// time units per step, depth 99, written to wave.vcd.
func MakeBuilder() Builder {
	return Builder{
		steps:     20,
		scale:     10,
		depth:     99,
		output:    "wave.vcd",
		timescale: vcd.DefaultTimescale,
	}
}

// WithDesign selects a registered design by name.
func (b Builder) WithDesign(name string) Builder {
	b.design = name
	b.factory = nil

	return b
}

// WithDeviceFactory uses the given factory instead of a registered design.
// The name identifies the instance in logs and errors.
func (b Builder) WithDeviceFactory(name string, f sim.DeviceFactory) Builder {
	b.design = name
	b.factory = f

	return b
}

// WithArgs sets the pass-through arguments given to the device factory.
func (b Builder) WithArgs(args []string) Builder {
	b.args = args
	return b
}

// WithSteps sets how many steps are evaluated.
func (b Builder) WithSteps(n int) Builder {
	b.steps = n
	return b
}

// WithScale sets how many time units a step lasts.
func (b Builder) WithScale(scale sim.VTime) Builder {
	b.scale = scale
	return b
}

// WithDepth sets how many hierarchy levels are traced.
func (b Builder) WithDepth(depth int) Builder {
	b.depth = depth
	return b
}

// WithOutput sets the trace destination.
func (b Builder) WithOutput(path string) Builder {
	b.output = path
	return b
}

// WithVersion sets the tool version written by the default VCD writer.
func (b Builder) WithVersion(v string) Builder {
	b.version = v
	return b
}

// WithTimescale sets the timescale of the default VCD writer.
func (b Builder) WithTimescale(ts vcd.Timescale) Builder {
	b.timescale = ts
	return b
}

// WithSink replaces the default VCD writer.
func (b Builder) WithSink(s tracing.Sink) Builder {
	b.sink = s
	return b
}

// WithRecorder adds a sink that receives the same frames as the main sink. It
// is opened before the main sink.
func (b Builder) WithRecorder(s tracing.Sink) Builder {
	b.extras = append(append([]tracing.Sink(nil), b.extras...), s)
	return b
}

// WithHook registers a hook on the driver, e.g. a monitor.
func (b Builder) WithHook(h sim.Hook) Builder {
	b.hooks = append(append([]sim.Hook(nil), b.hooks...), h)
	return b
}

// WithLogger sets the logger. Logs are discarded by default.
func (b Builder) WithLogger(l *slog.Logger) Builder {
	b.logger = l
	return b
}

func (b Builder) parametersMustBeValid() error {
	if b.design == "" {
		return fmt.Errorf("no design selected")
	}

	if b.steps < 0 {
		return fmt.Errorf("steps must be >= 0, got %d", b.steps)
	}

	if b.scale == 0 {
		return fmt.Errorf("scale must be > 0")
	}

	if b.depth <= 0 {
		return fmt.Errorf("depth must be > 0, got %d", b.depth)
	}

	if b.output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	if _, _, err := sim.LastStepTime(b.steps, b.scale); err != nil {
		return err
	}

	return nil
}

// Build builds the driver. A design name is resolved here, so an unknown
// design fails before anything is created.
func (b Builder) Build() (*Driver, error) {
	if err := b.parametersMustBeValid(); err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}

	factory := b.factory
	if factory == nil {
		var err error

		factory, err = sim.LookupDesign(b.design)
		if err != nil {
			return nil, fmt.Errorf("simulation: %w", err)
		}
	}

	sink := b.sink
	if sink == nil {
		vb := vcd.MakeBuilder().WithTimescale(b.timescale)
		if b.version != "" {
			vb = vb.WithVersion(b.version)
		}

		sink = vb.Build()
	}

	if len(b.extras) > 0 {
		// The main sink opens last so that a failing extra sink never
		// truncates an existing trace.
		sinks := append(append([]tracing.Sink(nil), b.extras...), sink)
		sink = tracing.NewMultiSink(sinks...)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Driver{
		HookableBase: sim.NewHookableBase(),
		design:       b.design,
		factory:      factory,
		args:         b.args,
		steps:        b.steps,
		scale:        b.scale,
		depth:        b.depth,
		output:       b.output,
		sink:         sink,
		logger:       logger,
	}

	for _, h := range b.hooks {
		d.AcceptHook(h)
	}

	return d, nil
}
