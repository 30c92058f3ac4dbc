// Package emu provides a functional, instruction-accurate emulator for the
// MR32 instruction set: scalar + vector register files, memory, the
// arithmetic kernels, the syscall trap, and the interpreter loop.
package emu

import "github.com/mr32/mr32sim/insts"

// RegFile holds the 33-slot scalar register file. R0 is hard-wired zero,
// R31 holds the vector length (VL), R32 is the program counter.
type RegFile struct {
	Scalar [insts.NumRegs]uint32
}

// Read returns the value of a scalar register. R0 always reads as zero.
func (r *RegFile) Read(reg uint8) uint32 {
	if reg == insts.RegZ {
		return 0
	}
	return r.Scalar[reg]
}

// Write stores a value into a scalar register. Writes to R0 and to R32 (PC)
// are silently discarded; PC is only ever advanced by the interpreter's
// branch/next-PC logic.
func (r *RegFile) Write(reg uint8, value uint32) {
	if reg == insts.RegZ || reg == insts.RegPC {
		return
	}
	r.Scalar[reg] = value
}

// PC returns the current program counter.
func (r *RegFile) PC() uint32 {
	return r.Scalar[insts.RegPC]
}

// SetPC unconditionally sets the program counter. Unlike Write, this bypasses
// the WB suppression rule because it is the interpreter's own PC-update step,
// not a register write-back.
func (r *RegFile) SetPC(pc uint32) {
	r.Scalar[insts.RegPC] = pc
}

// VL returns the current vector length, capped to the machine's physical
// lane count by the caller (see Emulator.effectiveVectorLength).
func (r *RegFile) VL() uint32 {
	return r.Scalar[insts.RegVL]
}

// VectorRegFile holds the 32 vector registers, each with Lanes uint32 lanes.
type VectorRegFile struct {
	Lanes int
	Regs  [insts.NumVectorRegs][]uint32
}

// NewVectorRegFile allocates a vector register file with the given lane
// count (must be a power of two, at least insts.NumVectorElements).
func NewVectorRegFile(lanes int) *VectorRegFile {
	v := &VectorRegFile{Lanes: lanes}
	for i := range v.Regs {
		v.Regs[i] = make([]uint32, lanes)
	}
	return v
}

// Read returns lane `lane` of vector register `reg`.
func (v *VectorRegFile) Read(reg uint8, lane int) uint32 {
	return v.Regs[reg][lane%v.Lanes]
}

// Write stores into lane `lane` of vector register `reg`.
func (v *VectorRegFile) Write(reg uint8, lane int, value uint32) {
	v.Regs[reg][lane%v.Lanes] = value
}

// Reset zeroes every vector register.
func (v *VectorRegFile) Reset() {
	for i := range v.Regs {
		for j := range v.Regs[i] {
			v.Regs[i][j] = 0
		}
	}
}
