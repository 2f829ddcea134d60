package simulation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/simtrace/datarecording"
	"github.com/sarchlab/simtrace/designs"
	"github.com/sarchlab/simtrace/sim"
	"github.com/sarchlab/simtrace/tracing"
)

type finalizingDevice struct {
	*MockDevice
	*MockFinalizer
}

var _ = Describe("Driver", func() {
	var (
		mockCtrl  *gomock.Controller
		device    *MockDevice
		finalizer *MockFinalizer
		sink      *MockSink
		builder   Builder
		value     uint64
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		device = NewMockDevice(mockCtrl)
		finalizer = NewMockFinalizer(mockCtrl)
		sink = NewMockSink(mockCtrl)
		value = 0

		dev := finalizingDevice{MockDevice: device, MockFinalizer: finalizer}
		builder = MakeBuilder().
			WithDeviceFactory("dut", func(_ []string) (sim.Device, error) {
				return dev, nil
			}).
			WithSink(sink)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectTrace := func() *gomock.Call {
		return device.EXPECT().Trace(gomock.Any(), 99).
			Do(func(r sim.SignalRegistry, _ int) {
				r.Declare(sim.Probe{
					Scope: []string{"top"},
					Name:  "v",
					Width: 8,
					Value: func() uint64 { return value },
				})
			})
	}

	frameAt := func(t sim.VTime) gomock.Matcher {
		return gomock.Cond(func(x any) bool {
			f, ok := x.(tracing.Frame)
			return ok && f.Time == t
		})
	}

	expectRun := func(steps int, scale sim.VTime) {
		calls := []any{
			expectTrace(),
			sink.EXPECT().Open(gomock.Any()).Return(nil),
		}

		for i := 0; i < steps; i++ {
			calls = append(calls,
				device.EXPECT().Eval().DoAndReturn(func() error {
					value++
					return nil
				}),
				sink.EXPECT().WriteFrame(frameAt(sim.VTime(i)*scale)).Return(nil),
			)
		}

		calls = append(calls,
			sink.EXPECT().Close().Return(nil),
			finalizer.EXPECT().Final().Return(nil),
		)

		gomock.InOrder(calls...)
	}

	It("should run the reference sequence", func() {
		expectRun(20, 10)

		driver, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(driver.Run()).To(Succeed())

		Expect(driver.Instance().Evaluated()).To(Equal(uint64(20)))
		Expect(driver.Instance().Destroyed()).To(BeTrue())
		Expect(driver.Session().State()).To(Equal(tracing.StateClosed))
		Expect(driver.Session().Frames()).To(Equal(uint64(20)))

		last, dumped := driver.Session().LastTimestamp()
		Expect(dumped).To(BeTrue())
		Expect(last).To(Equal(sim.VTime(190)))
		Expect(tracing.TracingEnabled()).To(BeTrue())
	})

	It("should use the configured step count and scale", func() {
		expectRun(3, 7)

		driver, err := builder.WithSteps(3).WithScale(7).Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(driver.Run()).To(Succeed())
	})

	It("should open and close the trace even with zero steps", func() {
		expectRun(0, 10)

		driver, err := builder.WithSteps(0).Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(driver.Run()).To(Succeed())

		_, dumped := driver.Session().LastTimestamp()
		Expect(dumped).To(BeFalse())
	})

	It("should sample the state left by each evaluation", func() {
		var samples []uint64

		gomock.InOrder(
			expectTrace(),
			sink.EXPECT().Open(gomock.Any()).Return(nil),
		)
		device.EXPECT().Eval().DoAndReturn(func() error {
			value += 2
			return nil
		}).Times(3)
		sink.EXPECT().WriteFrame(gomock.Any()).
			DoAndReturn(func(f tracing.Frame) error {
				samples = append(samples, f.Values[0])
				return nil
			}).Times(3)
		sink.EXPECT().Close().Return(nil)
		finalizer.EXPECT().Final().Return(nil)

		driver, err := builder.WithSteps(3).Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(driver.Run()).To(Succeed())
		Expect(samples).To(Equal([]uint64{2, 4, 6}))
	})

	It("should never evaluate when the trace cannot be opened", func() {
		openErr := errors.New("permission denied")

		gomock.InOrder(
			expectTrace(),
			sink.EXPECT().Open(gomock.Any()).Return(openErr),
			finalizer.EXPECT().Final().Return(nil),
		)
		device.EXPECT().Eval().Times(0)
		sink.EXPECT().Close().Times(0)

		driver, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())

		err = driver.Run()

		Expect(err).To(MatchError(tracing.ErrSinkOpen))
		Expect(err).To(MatchError(openErr))
		Expect(driver.Instance().Destroyed()).To(BeTrue())
	})

	It("should not open anything when the instance cannot be created", func() {
		kernelErr := errors.New("out of memory")

		driver, err := builder.
			WithDeviceFactory("dut", func(_ []string) (sim.Device, error) {
				return nil, kernelErr
			}).
			Build()
		Expect(err).NotTo(HaveOccurred())

		err = driver.Run()

		Expect(err).To(MatchError(sim.ErrInstanceCreation))
		Expect(err).To(MatchError(kernelErr))
		Expect(driver.Instance()).To(BeNil())
		Expect(driver.Session()).To(BeNil())
	})

	It("should release everything when a step fails", func() {
		evalErr := errors.New("x propagation")

		gomock.InOrder(
			expectTrace(),
			sink.EXPECT().Open(gomock.Any()).Return(nil),
			device.EXPECT().Eval().Return(nil),
			sink.EXPECT().WriteFrame(frameAt(0)).Return(nil),
			device.EXPECT().Eval().Return(evalErr),
			sink.EXPECT().Close().Return(nil),
			finalizer.EXPECT().Final().Return(nil),
		)

		driver, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())

		err = driver.Run()

		Expect(err).To(MatchError(evalErr))
		Expect(driver.Session().Frames()).To(Equal(uint64(1)))
	})

	It("should release everything when a dump fails", func() {
		dumpErr := errors.New("disk full")

		gomock.InOrder(
			expectTrace(),
			sink.EXPECT().Open(gomock.Any()).Return(nil),
			device.EXPECT().Eval().Return(nil),
			sink.EXPECT().WriteFrame(gomock.Any()).Return(dumpErr),
			sink.EXPECT().Close().Return(nil),
			finalizer.EXPECT().Final().Return(nil),
		)

		driver, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(driver.Run()).To(MatchError(dumpErr))
	})

	It("should release everything when a step panics", func() {
		gomock.InOrder(
			expectTrace(),
			sink.EXPECT().Open(gomock.Any()).Return(nil),
			device.EXPECT().Eval().Do(func() { panic("kernel crashed") }),
			sink.EXPECT().Close().Return(nil),
			finalizer.EXPECT().Final().Return(nil),
		)

		driver, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(func() { _ = driver.Run() }).To(PanicWith("kernel crashed"))
		Expect(driver.Instance().Destroyed()).To(BeTrue())
	})

	It("should report close and destroy failures together", func() {
		closeErr := errors.New("flush failed")
		finalErr := errors.New("leak")

		gomock.InOrder(
			expectTrace(),
			sink.EXPECT().Open(gomock.Any()).Return(nil),
			sink.EXPECT().Close().Return(closeErr),
			finalizer.EXPECT().Final().Return(finalErr),
		)

		driver, err := builder.WithSteps(0).Build()
		Expect(err).NotTo(HaveOccurred())

		err = driver.Run()

		Expect(err).To(MatchError(closeErr))
		Expect(err).To(MatchError(finalErr))
	})

	It("should run only once", func() {
		expectRun(1, 10)

		driver, err := builder.WithSteps(1).Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(driver.Run()).To(Succeed())
		Expect(driver.Run()).To(MatchError(ErrAlreadyRun))
	})

	It("should notify hooks after every step", func() {
		expectRun(4, 10)

		hook := NewMockHook(mockCtrl)
		var infos []sim.StepInfo
		hook.EXPECT().Func(gomock.Any()).Do(func(ctx sim.HookCtx) {
			Expect(ctx.Pos).To(Equal(sim.HookPosStepDone))
			infos = append(infos, ctx.Item.(sim.StepInfo))
		}).Times(4)

		driver, err := builder.WithSteps(4).WithHook(hook).Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(driver.Run()).To(Succeed())

		Expect(infos).To(HaveLen(4))
		for i, info := range infos {
			Expect(info.Index).To(Equal(uint64(i)))
			Expect(info.Total).To(Equal(uint64(4)))
			Expect(info.Time).To(Equal(sim.VTime(i * 10)))
			Expect(info.Instance).To(BeIdenticalTo(driver.Instance()))
		}
	})
})

var _ = Describe("Builder", func() {
	It("should reject invalid parameters", func() {
		base := MakeBuilder().WithDesign(designs.CounterName)

		for _, b := range []Builder{
			MakeBuilder(),
			base.WithSteps(-1),
			base.WithScale(0),
			base.WithDepth(0),
			base.WithOutput(""),
			base.WithSteps(3).WithScale(sim.VTime(^uint64(0))),
		} {
			_, err := b.Build()
			Expect(err).To(HaveOccurred())
		}
	})

	It("should reject unknown designs", func() {
		_, err := MakeBuilder().WithDesign("no_such_design").Build()

		Expect(err).To(MatchError(sim.ErrUnknownDesign))
	})

	It("should keep the reference defaults", func() {
		d, err := MakeBuilder().WithDesign(designs.CounterName).Build()

		Expect(err).NotTo(HaveOccurred())
		Expect(d.Steps()).To(Equal(20))
		Expect(d.Scale()).To(Equal(sim.VTime(10)))
		Expect(d.Output()).To(Equal("wave.vcd"))
	})
})

var _ = Describe("Driver with built-in designs", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	timestamps := func(path string) []string {
		content, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		var ts []string
		for _, line := range strings.Split(string(content), "\n") {
			if strings.HasPrefix(line, "#") {
				ts = append(ts, line)
			}
		}

		return ts
	}

	It("should write the reference waveform", func() {
		output := filepath.Join(dir, "wave.vcd")

		driver, err := MakeBuilder().
			WithDesign(designs.CounterName).
			WithOutput(output).
			Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.Run()).To(Succeed())

		ts := timestamps(output)
		Expect(ts).To(HaveLen(20))
		Expect(ts[0]).To(Equal("#0"))
		Expect(ts[19]).To(Equal("#190"))

		content, err := os.ReadFile(output)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(ContainSubstring("$scope module core $end"))
	})

	It("should write the configured tool version", func() {
		output := filepath.Join(dir, "wave.vcd")

		driver, err := MakeBuilder().
			WithDesign(designs.CounterName).
			WithOutput(output).
			WithVersion("simtrace 9.9.9").
			WithSteps(1).
			Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.Run()).To(Succeed())

		content, err := os.ReadFile(output)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(ContainSubstring("$version\n\tsimtrace 9.9.9\n$end"))
	})

	It("should produce the same timestamps on every run", func() {
		a := filepath.Join(dir, "a.vcd")
		b := filepath.Join(dir, "b.vcd")

		for _, out := range []string{a, b} {
			driver, err := MakeBuilder().
				WithDesign(designs.LFSRName).
				WithArgs([]string{"+seed=0x1234"}).
				WithSteps(50).
				WithScale(5).
				WithOutput(out).
				Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.Run()).To(Succeed())
		}

		Expect(timestamps(a)).To(Equal(timestamps(b)))
		Expect(timestamps(a)).To(HaveLen(50))
	})

	It("should only trace the configured depth", func() {
		output := filepath.Join(dir, "shallow.vcd")

		driver, err := MakeBuilder().
			WithDesign(designs.CounterName).
			WithDepth(1).
			WithOutput(output).
			Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.Run()).To(Succeed())

		content, err := os.ReadFile(output)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).NotTo(ContainSubstring("core"))
		Expect(driver.Session().Dropped()).To(Equal(2))
	})

	It("should destroy the instance when the output cannot be created", func() {
		driver, err := MakeBuilder().
			WithDesign(designs.CounterName).
			WithOutput(filepath.Join(dir, "missing", "wave.vcd")).
			Build()
		Expect(err).NotTo(HaveOccurred())

		err = driver.Run()

		Expect(err).To(MatchError(tracing.ErrSinkOpen))
		Expect(driver.Instance().Evaluated()).To(BeZero())
		Expect(driver.Instance().Destroyed()).To(BeTrue())
	})

	It("should leave no trace when the recorder cannot be opened", func() {
		output := filepath.Join(dir, "wave.vcd")

		driver, err := MakeBuilder().
			WithDesign(designs.CounterName).
			WithOutput(output).
			WithRecorder(datarecording.NewRecorder(
				filepath.Join(dir, "missing", "db"))).
			Build()
		Expect(err).NotTo(HaveOccurred())

		err = driver.Run()

		Expect(err).To(MatchError(tracing.ErrSinkOpen))
		Expect(driver.Instance().Evaluated()).To(BeZero())
		Expect(driver.Instance().Destroyed()).To(BeTrue())
		Expect(output).NotTo(BeAnExistingFile())
	})

	It("should keep an earlier trace when the recorder cannot be opened", func() {
		output := filepath.Join(dir, "wave.vcd")
		Expect(os.WriteFile(output, []byte("earlier run\n"), 0o644)).To(Succeed())

		driver, err := MakeBuilder().
			WithDesign(designs.CounterName).
			WithOutput(output).
			WithRecorder(datarecording.NewRecorder(
				filepath.Join(dir, "missing", "db"))).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(driver.Run()).To(MatchError(tracing.ErrSinkOpen))

		content, err := os.ReadFile(output)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("earlier run\n"))
	})

	It("should discard the recorded run when the trace cannot be created", func() {
		record := filepath.Join(dir, "record")

		driver, err := MakeBuilder().
			WithDesign(designs.CounterName).
			WithOutput(filepath.Join(dir, "missing", "wave.vcd")).
			WithRecorder(datarecording.NewRecorder(record)).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(driver.Run()).To(MatchError(tracing.ErrSinkOpen))

		reader, err := datarecording.NewReader(record)
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		runs, err := reader.ListRuns()
		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(BeEmpty())
	})

	It("should fan frames out to a recorder", func() {
		output := filepath.Join(dir, "wave.vcd")
		record := filepath.Join(dir, "record")

		driver, err := MakeBuilder().
			WithDesign(designs.ShiftRegisterName).
			WithOutput(output).
			WithSteps(8).
			WithRecorder(datarecording.NewRecorder(record)).
			Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.Run()).To(Succeed())

		reader, err := datarecording.NewReader(record)
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		frames, err := reader.Frames(driver.Session().ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(8))
		Expect(frames[7].Time).To(Equal(sim.VTime(70)))
		Expect(timestamps(output)).To(HaveLen(8))
	})
})
