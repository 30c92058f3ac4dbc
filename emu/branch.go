package emu

import "github.com/mr32/mr32sim/insts"

// BranchUnit evaluates the branch/jump pre-compute step described in
// spec.md §4.5: branches are resolved in decode, before the vector loop
// runs, because the ISA commits PC synchronously with the rest of the
// instruction rather than via a separate control-flow stage.
type BranchUnit struct{}

// NewBranchUnit constructs a BranchUnit. It holds no state.
func NewBranchUnit() *BranchUnit {
	return &BranchUnit{}
}

// EvalCondition tests `regVal` against zero per the eight conditions:
// bz/bnz test for all-zero/non-zero, bs/bns test for all-ones/not-all-ones,
// blt/bge test the sign bit, ble/bgt combine the sign bit with a zero test.
func (b *BranchUnit) EvalCondition(cond insts.Cond, regVal uint32) bool {
	switch cond {
	case insts.CondBZ:
		return regVal == 0
	case insts.CondNZ:
		return regVal != 0
	case insts.CondS:
		return regVal == 0xFFFFFFFF
	case insts.CondNS:
		return regVal != 0xFFFFFFFF
	case insts.CondLT:
		return int32(regVal) < 0
	case insts.CondGE:
		return int32(regVal) >= 0
	case insts.CondLE:
		return int32(regVal) <= 0
	case insts.CondGT:
		return int32(regVal) > 0
	default:
		return false
	}
}

// NextPC computes the next program counter for a decoded instruction given
// the current PC and (for conditional branches) the tested register's
// value, and reports whether the link register should be written with
// PC+4 (true only for the `jl` form).
func (b *BranchUnit) NextPC(d insts.Descriptor, pc uint32, testRegVal uint32, jumpTargetReg uint32) (nextPC uint32, writeLink bool) {
	switch {
	case d.IsBranch:
		if b.EvalCondition(d.Cond, testRegVal) {
			return uint32(int32(pc) + d.Immediate), false
		}
		return pc + 4, false
	case d.IsJump:
		// reg1 == 31 is the "use PC instead of a register" sentinel for j/jl
		// (original_source/sim/cpu_simple.cpp: `reg1 == 31 ? pc : m_regs[reg1]`);
		// it is unrelated to R31 (VL), which is never addressed here.
		base := jumpTargetReg
		if d.Reg1 == 31 {
			base = pc
		}
		return uint32(int32(base) + d.Immediate), d.IsLink
	default:
		return pc + 4, false
	}
}
