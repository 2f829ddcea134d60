package sim

import (
	"fmt"
)

// An Instance owns one Device for the lifetime of a run. It guarantees that the
// device is never evaluated after it is destroyed and that it is destroyed
// only once.
type Instance struct {
	*HookableBase

	name      string
	device    Device
	evaluated uint64
	traced    bool
	destroyed bool
}

// Create builds a device with the factory and wraps it into an instance. The
// name is only used to identify the instance in errors and logs.
func Create(name string, factory DeviceFactory, args []string) (*Instance, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: %s: no factory", ErrInstanceCreation, name)
	}

	device, err := factory(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstanceCreation, name, err)
	}

	if device == nil {
		return nil, fmt.Errorf("%w: %s: factory returned no device",
			ErrInstanceCreation, name)
	}

	i := &Instance{
		HookableBase: NewHookableBase(),
		name:         name,
		device:       device,
	}

	return i, nil
}

// Name returns the name of the instance.
func (i *Instance) Name() string {
	return i.name
}

// Device returns the wrapped device.
func (i *Instance) Device() Device {
	return i.device
}

// Evaluated returns how many steps have been evaluated.
func (i *Instance) Evaluated() uint64 {
	return i.evaluated
}

// Destroyed tells if the instance has been destroyed.
func (i *Instance) Destroyed() bool {
	return i.destroyed
}

// Eval advances the device by exactly one step.
func (i *Instance) Eval() error {
	if i.destroyed {
		return fmt.Errorf("%w: %s: eval", ErrInstanceDestroyed, i.name)
	}

	step := i.evaluated

	i.InvokeHook(HookCtx{
		Domain: i,
		Pos:    HookPosBeforeEval,
		Item:   step,
	})

	err := i.device.Eval()
	if err != nil {
		return fmt.Errorf("%s: step %d: %w", i.name, step, err)
	}

	i.evaluated++

	i.InvokeHook(HookCtx{
		Domain: i,
		Pos:    HookPosAfterEval,
		Item:   step,
	})

	return nil
}

// AttachTrace lets the device declare its signals into r. An instance accepts
// only one trace.
func (i *Instance) AttachTrace(r SignalRegistry, depth int) error {
	if i.destroyed {
		return fmt.Errorf("%w: %s: attach trace", ErrInstanceDestroyed, i.name)
	}

	if i.traced {
		return fmt.Errorf("%w: %s", ErrTraceAttached, i.name)
	}

	i.device.Trace(r, depth)
	i.traced = true

	return nil
}

// Destroy releases the device. Calling it again returns ErrInstanceDestroyed.
func (i *Instance) Destroy() error {
	if i.destroyed {
		return fmt.Errorf("%w: %s: destroy", ErrInstanceDestroyed, i.name)
	}

	i.destroyed = true

	f, ok := i.device.(Finalizer)
	if !ok {
		return nil
	}

	err := f.Final()
	if err != nil {
		return fmt.Errorf("%s: final: %w", i.name, err)
	}

	return nil
}
