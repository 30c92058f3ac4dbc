package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mr32/mr32sim/emu"
	"github.com/mr32/mr32sim/insts"
)

var _ = Describe("LoadStoreUnit", func() {
	var (
		mem *emu.Memory
		lsu *emu.LoadStoreUnit
	)

	BeforeEach(func() {
		mem = emu.NewMemory(64)
		lsu = emu.NewLoadStoreUnit(mem)
	})

	Describe("ScaleFactor", func() {
		It("maps each packed mode to its byte stride", func() {
			Expect(emu.ScaleFactor(insts.PackedNone)).To(Equal(uint32(1)))
			Expect(emu.ScaleFactor(insts.PackedByte)).To(Equal(uint32(2)))
			Expect(emu.ScaleFactor(insts.PackedHalfWord)).To(Equal(uint32(4)))
		})
	})

	Describe("Load", func() {
		BeforeEach(func() {
			Expect(mem.Store8(0, 0xFF)).To(Succeed())
			Expect(mem.Store16(2, 0x8000)).To(Succeed())
			Expect(mem.Store32(4, 0xDEADBEEF)).To(Succeed())
		})

		It("sign-extends a byte load", func() {
			v, err := lsu.Load(insts.MemLoad8, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0xFFFFFFFF)))
		})

		It("zero-extends an unsigned byte load", func() {
			v, err := lsu.Load(insts.MemLoadU8, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0xFF)))
		})

		It("sign-extends a half-word load", func() {
			v, err := lsu.Load(insts.MemLoad16, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0xFFFF8000)))
		})

		It("zero-extends an unsigned half-word load", func() {
			v, err := lsu.Load(insts.MemLoadU16, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0x8000)))
		})

		It("loads a full word untouched", func() {
			v, err := lsu.Load(insts.MemLoad32, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0xDEADBEEF)))
		})

		It("ldea returns the address itself, without touching memory", func() {
			v, err := lsu.Load(insts.MemLdea, 0x1234)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0x1234)))
		})

		It("propagates a bounds fault from the underlying memory", func() {
			_, err := lsu.Load(insts.MemLoad32, mem.Size())
			Expect(err).To(MatchError(emu.ErrBounds))
		})
	})

	Describe("Store", func() {
		It("stores each width and leaves it readable via Memory directly", func() {
			Expect(lsu.Store(insts.MemStore8, 0, 0xAB)).To(Succeed())
			v8, err := mem.Load8(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(v8).To(Equal(uint8(0xAB)))

			Expect(lsu.Store(insts.MemStore16, 2, 0xBEEF)).To(Succeed())
			v16, err := mem.Load16(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(v16).To(Equal(uint16(0xBEEF)))

			Expect(lsu.Store(insts.MemStore32, 4, 0xCAFEBABE)).To(Succeed())
			v32, err := mem.Load32(4)
			Expect(err).NotTo(HaveOccurred())
			Expect(v32).To(Equal(uint32(0xCAFEBABE)))
		})
	})

	Describe("IsStore", func() {
		It("classifies each mem_op correctly", func() {
			Expect(emu.IsStore(insts.MemStore8)).To(BeTrue())
			Expect(emu.IsStore(insts.MemStore16)).To(BeTrue())
			Expect(emu.IsStore(insts.MemStore32)).To(BeTrue())
			Expect(emu.IsStore(insts.MemLoad32)).To(BeFalse())
			Expect(emu.IsStore(insts.MemLdea)).To(BeFalse())
		})
	})
})
