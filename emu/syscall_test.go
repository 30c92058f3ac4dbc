package emu_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mr32/mr32sim/emu"
)

var _ = Describe("SyscallTrap", func() {
	var (
		mem    *emu.Memory
		regs   *emu.RegFile
		stdin  *strings.Reader
		stdout *bytes.Buffer
		stderr *bytes.Buffer
		trap   *emu.SyscallTrap
	)

	BeforeEach(func() {
		mem = emu.NewMemory(4096)
		regs = &emu.RegFile{}
		stdin = strings.NewReader("hi")
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
		trap = emu.NewSyscallTrap(mem, stdin, stdout, stderr)
	})

	Describe("RoutineForPC", func() {
		It("maps the trap window's first word to RoutineExit", func() {
			routine, ok := emu.RoutineForPC(emu.TrapBase)
			Expect(ok).To(BeTrue())
			Expect(routine).To(Equal(emu.RoutineExit))
		})

		It("rejects a PC outside the trap window", func() {
			_, ok := emu.RoutineForPC(emu.TrapBase - 4)
			Expect(ok).To(BeFalse())

			_, ok = emu.RoutineForPC(emu.TrapBase + emu.TrapSpan)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("RoutineExit", func() {
		It("latches termination and the guest's requested exit code", func() {
			regs.Write(1, 7)
			trap.Call(emu.RoutineExit, regs)

			Expect(trap.Terminated()).To(BeTrue())
			Expect(trap.ExitCode()).To(Equal(uint32(7)))
		})
	})

	Describe("RoutinePutchar", func() {
		It("writes a single byte to stdout and echoes it back in R1", func() {
			regs.Write(1, uint32('A'))
			trap.Call(emu.RoutinePutchar, regs)

			Expect(stdout.String()).To(Equal("A"))
			Expect(regs.Read(1)).To(Equal(uint32('A')))
		})
	})

	Describe("RoutineGetchar", func() {
		It("returns successive bytes from stdin", func() {
			trap.Call(emu.RoutineGetchar, regs)
			Expect(regs.Read(1)).To(Equal(uint32('h')))

			trap.Call(emu.RoutineGetchar, regs)
			Expect(regs.Read(1)).To(Equal(uint32('i')))
		})

		It("returns -1 (as uint32) once stdin is exhausted", func() {
			trap.Call(emu.RoutineGetchar, regs)
			trap.Call(emu.RoutineGetchar, regs)
			trap.Call(emu.RoutineGetchar, regs)

			Expect(regs.Read(1)).To(Equal(uint32(0xFFFFFFFF)))
		})
	})

	Describe("RoutineWrite", func() {
		It("writes a guest buffer to host stdout via fd 1", func() {
			Expect(mem.WriteBytes(0x100, []byte("hello"))).To(Succeed())
			regs.Write(1, 1) // fd
			regs.Write(2, 0x100)
			regs.Write(3, 5)

			trap.Call(emu.RoutineWrite, regs)

			Expect(stdout.String()).To(Equal("hello"))
			Expect(regs.Read(1)).To(Equal(uint32(5)))
		})

		It("routes fd 2 to host stderr", func() {
			Expect(mem.WriteBytes(0x100, []byte("oops"))).To(Succeed())
			regs.Write(1, 2)
			regs.Write(2, 0x100)
			regs.Write(3, 4)

			trap.Call(emu.RoutineWrite, regs)

			Expect(stderr.String()).To(Equal("oops"))
		})

		It("fails cleanly when the guest buffer is out of range", func() {
			regs.Write(1, 1)
			regs.Write(2, 0xFFFFFFFF)
			regs.Write(3, 16)

			trap.Call(emu.RoutineWrite, regs)

			Expect(regs.Read(1)).To(Equal(uint32(0xFFFFFFFF)))
		})
	})

	Describe("RoutineGettimeMicros", func() {
		It("splits a 64-bit microsecond count across R1/R2", func() {
			trap.Call(emu.RoutineGettimeMicros, regs)
			lo := regs.Read(1)
			hi := regs.Read(2)
			Expect(uint64(hi)<<32 | uint64(lo)).To(BeNumerically(">", 0))
		})
	})
})
