package emu_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mr32/mr32sim/emu"
	"github.com/mr32/mr32sim/insts"
)

// encodeClassA mirrors insts_test's helper of the same name, rebuilt here
// since package emu_test cannot import an internal test helper from
// package insts_test.
func encodeClassA(reg1, reg2, reg3 uint8, vmode uint32, pmode uint32, opcode uint32) uint32 {
	word := (uint32(reg1) & 0x1F) << 21
	word |= (uint32(reg2) & 0x1F) << 16
	word |= (uint32(reg3) & 0x1F) << 10
	word |= (vmode & 0x3) << 14
	word |= (pmode & 0x3) << 7
	word |= opcode & 0x7F
	return word
}

// classDE mirrors insts_test's helper of the same name.
func classDE(subOrBranchMarker uint32, rest uint32) uint32 {
	return (uint32(0x6) << 29) | ((subOrBranchMarker & 0x7) << 26) | rest
}

func newTestEmulator(ramSize uint32, entry uint32) (*emu.Emulator, *emu.Memory) {
	mem := emu.NewMemory(ramSize)
	syscalls := emu.NewSyscallTrap(mem, bytes.NewReader(nil), &bytes.Buffer{}, &bytes.Buffer{})
	e := emu.NewEmulator(mem, syscalls, insts.NumVectorElements, emu.WithEntryPoint(entry))
	return e, mem
}

var _ = Describe("Emulator", func() {
	Describe("tiny return", func() {
		It("exits with the guest's requested code on the first cycle", func() {
			e, _ := newTestEmulator(0x1000, emu.TrapBase)
			e.Regs().Write(1, 42)

			err := e.Run()

			Expect(err).NotTo(HaveOccurred())
			Expect(e.Terminated()).To(BeTrue())
			Expect(e.ExitCode()).To(Equal(uint32(42)))
			// The trap only rewrites PC to LR (0, since LR was never set);
			// the reference falls through to execute whatever sits there
			// in the same cycle rather than ending it on the trap alone.
			Expect(e.Cycles()).To(BeNumerically(">=", 1))
		})
	})

	Describe("addition", func() {
		It("wraps R1 = R2 + R3 on signed overflow and advances one cycle", func() {
			e, mem := newTestEmulator(0x1000, 0)
			word := encodeClassA(1, 2, 3, 0, insts.PackedNone, insts.OpADD)
			Expect(mem.Store32(0, word)).To(Succeed())

			e.Regs().Write(2, 0x7FFFFFFE)
			e.Regs().Write(3, 3)

			Expect(e.Step()).To(Succeed())

			Expect(e.Regs().Read(1)).To(Equal(uint32(0x80000001)))
			Expect(e.Cycles()).To(Equal(uint64(1)))
			Expect(e.Regs().PC()).To(Equal(uint32(4)))
		})
	})

	Describe("vector copy with stride", func() {
		It("loads four sequential words into V1 following a scalar stride", func() {
			e, mem := newTestEmulator(0x4000, 0)
			// vector load: V1, [R2 + R4*stride], vmode=2 (scalar stride operand).
			word := encodeClassA(1, 2, 4, 2, insts.PackedNone, insts.MemLoad32)
			Expect(mem.Store32(0, word)).To(Succeed())

			base := uint32(0x2000)
			Expect(mem.Store32(base+0, 0x10)).To(Succeed())
			Expect(mem.Store32(base+4, 0x20)).To(Succeed())
			Expect(mem.Store32(base+8, 0x30)).To(Succeed())
			Expect(mem.Store32(base+12, 0x40)).To(Succeed())

			e.Regs().Write(2, base)
			e.Regs().Write(4, 4) // stride, in bytes
			e.Regs().Write(insts.RegVL, 4)

			Expect(e.Step()).To(Succeed())

			Expect(e.VectorRegs().Read(1, 0)).To(Equal(uint32(0x10)))
			Expect(e.VectorRegs().Read(1, 1)).To(Equal(uint32(0x20)))
			Expect(e.VectorRegs().Read(1, 2)).To(Equal(uint32(0x30)))
			Expect(e.VectorRegs().Read(1, 3)).To(Equal(uint32(0x40)))

			// Four lanes executed: one cycle and one vector-loop count per
			// lane, not one of each for the whole instruction.
			Expect(e.Cycles()).To(Equal(uint64(4)))
			Expect(e.VectorLoopCount()).To(Equal(uint64(4)))
		})
	})

	Describe("link branch", func() {
		It("sets LR to the return address and PC to the jump target", func() {
			e, mem := newTestEmulator(0x4000, 0x1000)
			// jl with reg1==31 (the "use PC" sentinel) and a +0x1000 offset.
			imm21 := uint32(0x1000) >> 2
			word := classDE(1, (uint32(31)<<21)|imm21)
			Expect(mem.Store32(0x1000, word)).To(Succeed())

			Expect(e.Step()).To(Succeed())

			Expect(e.Regs().Read(insts.RegLR)).To(Equal(uint32(0x1004)))
			Expect(e.Regs().PC()).To(Equal(uint32(0x2000)))
		})
	})

	Describe("universal invariants", func() {
		It("discards writes to R0 and always reads it as zero", func() {
			e, mem := newTestEmulator(0x1000, 0)
			word := encodeClassA(0, 2, 3, 0, insts.PackedNone, insts.OpADD)
			Expect(mem.Store32(0, word)).To(Succeed())
			e.Regs().Write(2, 5)
			e.Regs().Write(3, 7)

			Expect(e.Step()).To(Succeed())

			Expect(e.Regs().Read(0)).To(Equal(uint32(0)))
		})

		It("never lets a regular write-back change PC directly", func() {
			e := &emu.RegFile{}
			e.Write(insts.RegPC, 0xDEADBEEF)
			Expect(e.PC()).To(Equal(uint32(0)))
		})

		It("computes div-by-zero as -1 end to end", func() {
			e, mem := newTestEmulator(0x1000, 0)
			word := encodeClassA(1, 2, 3, 0, insts.PackedNone, insts.OpDIV)
			Expect(mem.Store32(0, word)).To(Succeed())
			e.Regs().Write(2, 123)
			e.Regs().Write(3, 0)

			Expect(e.Step()).To(Succeed())

			Expect(e.Regs().Read(1)).To(Equal(uint32(0xFFFFFFFF)))
		})
	})

	Describe("faults", func() {
		It("returns a FaultError with a register dump on an out-of-bounds fetch", func() {
			e, _ := newTestEmulator(4, 0x100) // entry far past the tiny RAM
			err := e.Step()

			Expect(err).To(HaveOccurred())
			var faultErr *emu.FaultError
			Expect(errors.As(err, &faultErr)).To(BeTrue())
			Expect(faultErr.RegisterDump).To(ContainSubstring("PC  ="))
		})
	})
})
