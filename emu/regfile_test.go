package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mr32/mr32sim/emu"
	"github.com/mr32/mr32sim/insts"
)

var _ = Describe("RegFile", func() {
	var regs *emu.RegFile

	BeforeEach(func() {
		regs = &emu.RegFile{}
	})

	It("always reads R0 as zero, regardless of prior writes", func() {
		regs.Write(insts.RegZ, 0xFFFFFFFF)
		Expect(regs.Read(insts.RegZ)).To(Equal(uint32(0)))
	})

	It("round trips an ordinary scalar register", func() {
		regs.Write(5, 0x12345678)
		Expect(regs.Read(5)).To(Equal(uint32(0x12345678)))
	})

	It("silently discards writes to PC through the normal write-back path", func() {
		regs.SetPC(0x1000)
		regs.Write(insts.RegPC, 0xDEADBEEF)
		Expect(regs.PC()).To(Equal(uint32(0x1000)))
	})

	It("lets SetPC bypass the write-back suppression", func() {
		regs.SetPC(0x2000)
		Expect(regs.PC()).To(Equal(uint32(0x2000)))
	})

	It("exposes VL through R31", func() {
		regs.Write(insts.RegVL, 8)
		Expect(regs.VL()).To(Equal(uint32(8)))
	})
})

var _ = Describe("VectorRegFile", func() {
	var vregs *emu.VectorRegFile

	BeforeEach(func() {
		vregs = emu.NewVectorRegFile(insts.NumVectorElements)
	})

	It("round trips a lane write", func() {
		vregs.Write(3, 2, 0xCAFEBABE)
		Expect(vregs.Read(3, 2)).To(Equal(uint32(0xCAFEBABE)))
	})

	It("wraps lane indices modulo the configured lane count", func() {
		vregs.Write(1, 0, 0x11)
		Expect(vregs.Read(1, insts.NumVectorElements)).To(Equal(uint32(0x11)))
	})

	It("keeps registers independent of one another", func() {
		vregs.Write(1, 0, 0xAAAA)
		vregs.Write(2, 0, 0xBBBB)
		Expect(vregs.Read(1, 0)).To(Equal(uint32(0xAAAA)))
		Expect(vregs.Read(2, 0)).To(Equal(uint32(0xBBBB)))
	})
})
