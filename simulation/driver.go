// Package simulation runs a device instance through a fixed number of steps
// while recording its signals into a trace.
package simulation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sarchlab/simtrace/sim"
	"github.com/sarchlab/simtrace/tracing"
)

// ErrAlreadyRun is returned when a driver is run a second time.
var ErrAlreadyRun = errors.New("driver can only run once")

// A Driver owns one instance and one trace session. It evaluates the instance
// a fixed number of times and dumps a frame after every step.
type Driver struct {
	*sim.HookableBase

	design  string
	factory sim.DeviceFactory
	args    []string
	steps   int
	scale   sim.VTime
	depth   int
	output  string
	sink    tracing.Sink
	logger  *slog.Logger

	ran      bool
	instance *sim.Instance
	session  *tracing.Session
}

// Steps returns the number of steps the driver evaluates.
func (d *Driver) Steps() int {
	return d.steps
}

// Scale returns the number of time units per step.
func (d *Driver) Scale() sim.VTime {
	return d.scale
}

// Output returns the trace destination.
func (d *Driver) Output() string {
	return d.output
}

// Instance returns the instance of the last run, or nil before Run.
func (d *Driver) Instance() *sim.Instance {
	return d.instance
}

// Session returns the trace session of the last run, or nil if the run failed
// before the session was created.
func (d *Driver) Session() *tracing.Session {
	return d.session
}

// Run creates the instance, records the configured number of steps and
// releases everything. The session is always closed before the instance is
// destroyed, and each of them is released exactly once whatever the exit
// path. The first error stops the run; release errors are joined to it.
func (d *Driver) Run() (err error) {
	if d.ran {
		return ErrAlreadyRun
	}

	d.ran = true

	instance, err := sim.Create(d.design, d.factory, d.args)
	if err != nil {
		return err
	}

	d.instance = instance
	d.logger.Info("instance created", "design", d.design)

	defer func() {
		err = errors.Join(err, d.destroy(instance))
	}()

	tracing.EnableTracing()

	session := tracing.NewSession(d.sink)
	d.session = session

	if err := session.Attach(instance, d.depth); err != nil {
		return err
	}

	if err := session.Open(d.output); err != nil {
		return err
	}

	d.logger.Info("trace opened",
		"session", session.ID(),
		"output", d.output,
		"signals", len(session.Signals()),
		"dropped", session.Dropped(),
		"depth", d.depth)

	defer func() {
		err = errors.Join(err, d.close(session))
	}()

	return d.loop(instance, session)
}

func (d *Driver) loop(instance *sim.Instance, session *tracing.Session) error {
	total := uint64(d.steps)

	for i := 0; i < d.steps; i++ {
		if err := instance.Eval(); err != nil {
			return err
		}

		t, err := sim.StepTime(i, d.scale)
		if err != nil {
			return err
		}

		if err := session.Dump(t); err != nil {
			return err
		}

		d.InvokeHook(sim.HookCtx{
			Domain: d,
			Pos:    sim.HookPosStepDone,
			Item: sim.StepInfo{
				Index:    uint64(i),
				Total:    total,
				Time:     t,
				Instance: instance,
			},
		})
	}

	return nil
}

func (d *Driver) close(session *tracing.Session) error {
	err := session.Close()
	if err != nil {
		d.logger.Error("trace close failed", "error", err)
		return err
	}

	last, dumped := session.LastTimestamp()
	d.logger.Info("trace closed",
		"frames", session.Frames(),
		"last", last,
		"dumped", dumped)

	return nil
}

func (d *Driver) destroy(instance *sim.Instance) error {
	err := instance.Destroy()
	if err != nil {
		d.logger.Error("instance destroy failed", "error", err)
		return fmt.Errorf("destroy instance: %w", err)
	}

	d.logger.Info("instance destroyed", "steps", instance.Evaluated())

	return nil
}
