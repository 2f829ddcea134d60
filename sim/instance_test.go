package sim

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

type finalizingDevice struct {
	*MockDevice
	*MockFinalizer
}

var _ = Describe("Instance", func() {
	var (
		mockCtrl *gomock.Controller
		device   *MockDevice
		instance *Instance
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		device = NewMockDevice(mockCtrl)

		var err error
		instance, err = Create("dut", func(_ []string) (Device, error) {
			return device, nil
		}, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pass the arguments to the factory", func() {
		var got []string
		_, err := Create("dut", func(args []string) (Device, error) {
			got = args
			return device, nil
		}, []string{"+seed=3"})

		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]string{"+seed=3"}))
	})

	It("should report factory failures as creation errors", func() {
		kernelErr := errors.New("out of memory")

		_, err := Create("dut", func(_ []string) (Device, error) {
			return nil, kernelErr
		}, nil)

		Expect(err).To(MatchError(ErrInstanceCreation))
		Expect(err).To(MatchError(kernelErr))
	})

	It("should reject a nil device", func() {
		_, err := Create("dut", func(_ []string) (Device, error) {
			return nil, nil
		}, nil)

		Expect(err).To(MatchError(ErrInstanceCreation))
	})

	It("should reject a nil factory", func() {
		_, err := Create("dut", nil, nil)

		Expect(err).To(MatchError(ErrInstanceCreation))
	})

	It("should evaluate the device and count steps", func() {
		device.EXPECT().Eval().Return(nil).Times(3)

		for i := 0; i < 3; i++ {
			Expect(instance.Eval()).To(Succeed())
		}

		Expect(instance.Evaluated()).To(Equal(uint64(3)))
	})

	It("should invoke hooks around each evaluation", func() {
		hook := NewMockHook(mockCtrl)
		instance.AcceptHook(hook)

		before := hook.EXPECT().Func(gomock.Any()).Do(func(ctx HookCtx) {
			Expect(ctx.Pos).To(Equal(HookPosBeforeEval))
			Expect(ctx.Item).To(Equal(uint64(0)))
		})
		eval := device.EXPECT().Eval().Return(nil).After(before)
		hook.EXPECT().Func(gomock.Any()).Do(func(ctx HookCtx) {
			Expect(ctx.Pos).To(Equal(HookPosAfterEval))
			Expect(ctx.Item).To(Equal(uint64(0)))
		}).After(eval)

		Expect(instance.Eval()).To(Succeed())
	})

	It("should not count a failed step", func() {
		device.EXPECT().Eval().Return(errors.New("x propagation"))

		err := instance.Eval()

		Expect(err).To(HaveOccurred())
		Expect(instance.Evaluated()).To(Equal(uint64(0)))
	})

	It("should attach only one trace", func() {
		registry := NewMockSignalRegistry(mockCtrl)
		device.EXPECT().Trace(registry, 99)

		Expect(instance.AttachTrace(registry, 99)).To(Succeed())
		Expect(instance.AttachTrace(registry, 99)).
			To(MatchError(ErrTraceAttached))
	})

	It("should refuse to evaluate after destroy", func() {
		Expect(instance.Destroy()).To(Succeed())

		Expect(instance.Destroyed()).To(BeTrue())
		Expect(instance.Eval()).To(MatchError(ErrInstanceDestroyed))
	})

	It("should destroy only once", func() {
		Expect(instance.Destroy()).To(Succeed())
		Expect(instance.Destroy()).To(MatchError(ErrInstanceDestroyed))
	})

	It("should finalize devices that hold resources", func() {
		finalizer := NewMockFinalizer(mockCtrl)
		dev := finalizingDevice{MockDevice: device, MockFinalizer: finalizer}
		inst, err := Create("dut", func(_ []string) (Device, error) {
			return dev, nil
		}, nil)
		Expect(err).NotTo(HaveOccurred())

		finalizer.EXPECT().Final().Return(nil).Times(1)

		Expect(inst.Destroy()).To(Succeed())
		Expect(inst.Destroy()).To(MatchError(ErrInstanceDestroyed))
	})
})
