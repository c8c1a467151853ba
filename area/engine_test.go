package area

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/codec"
	"github.com/sarchlab/dbsim/datablock"
	"github.com/sarchlab/dbsim/hooking"
)

var _ = Describe("Engine", func() {
	var (
		engine *Engine
		store  *datablock.Store
	)

	BeforeEach(func() {
		engine = NewEngine(zerolog.Nop())
		store = datablock.MakeBuilder().WithRegistrar(engine).Build()
	})

	It("should refuse registration before start", func() {
		Expect(engine.Running()).To(BeFalse())

		_, err := store.Create(1, 4)

		Expect(err).To(MatchError(datablock.ErrEngineNotRunning))
		Expect(engine.Areas()).To(BeEmpty())
	})

	It("should not start twice", func() {
		Expect(engine.Start()).To(Succeed())
		Expect(engine.Start()).To(MatchError(ErrAlreadyRunning))
		Expect(engine.Stop()).To(Succeed())
		Expect(engine.Stop()).To(MatchError(ErrNotRunning))
	})

	Context("when running", func() {
		BeforeEach(func() {
			Expect(engine.Start()).To(Succeed())
		})

		It("should expose datablocks created in the store", func() {
			_, err := store.Create(3, 8)
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Areas()).To(ConsistOf(
				WithTransform(func(i Info) int { return i.ID }, Equal(3))))

			Expect(store.WriteField(3, 2, codec.IntValue(-2), 0)).To(Succeed())

			data, err := engine.Read(3, 2, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(int16(binary.BigEndian.Uint16(data))).To(Equal(int16(-2)))
		})

		It("should let remote writes reach the store", func() {
			_, err := store.Create(3, 8)
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Write(3, 4, []byte{0x00, 0x00, 0x01, 0x00})).To(Succeed())

			v, err := store.ReadField(3, 4, codec.DInt, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Int()).To(Equal(int64(256)))
		})

		It("should reject accesses outside the area", func() {
			_, err := store.Create(3, 4)
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Read(3, 2, 3)
			Expect(err).To(MatchError(datablock.ErrExceedsLength))
			Expect(engine.Write(3, -1, []byte{1})).
				To(MatchError(datablock.ErrExceedsLength))
			_, err = engine.Read(4, 0, 1)
			Expect(err).To(MatchError(ErrAreaNotFound))
		})

		It("should withdraw removed datablocks", func() {
			_, err := store.Create(3, 4)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Remove(3)).To(Succeed())

			Expect(engine.Areas()).To(BeEmpty())
			_, err = engine.Read(3, 0, 1)
			Expect(err).To(MatchError(ErrAreaNotFound))
		})

		It("should refuse duplicate registrations", func() {
			_, err := store.Create(3, 4)
			Expect(err).NotTo(HaveOccurred())
			b, _ := store.Get(3)

			Expect(engine.Register(3, b, 4)).To(MatchError(ErrAreaExists))
			Expect(engine.Unregister(9)).To(MatchError(ErrAreaNotFound))
		})

		It("should report accesses to hooks", func() {
			var accesses []Access
			engine.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				accesses = append(accesses, ctx.Item.(Access))
			}))
			_, err := store.Create(3, 4)
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Read(3, 1, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Write(3, 0, []byte{1})).To(Succeed())

			Expect(accesses).To(Equal([]Access{
				{ID: 3, Offset: 1, Length: 2},
				{ID: 3, Offset: 0, Length: 1},
			}))
		})

		It("should stop serving after stop", func() {
			_, err := store.Create(3, 4)
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Stop()).To(Succeed())

			_, err = engine.Read(3, 0, 1)
			Expect(err).To(MatchError(ErrNotRunning))
			_, err = store.Get(3)
			Expect(err).To(MatchError(datablock.ErrEngineNotRunning))
			Expect(engine.Status().Running).To(BeFalse())
			Expect(engine.Status().Areas).To(HaveLen(1))
		})
	})
})
