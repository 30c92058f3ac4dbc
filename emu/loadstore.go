package emu

import "github.com/mr32/mr32sim/insts"

// LoadStoreUnit performs the MEM stage for a decoded mem_op against Memory.
// Address generation (src_a + (src_b << scale)) happens in the interpreter's
// EX stage per spec.md §4.5; this unit only performs the actual access.
type LoadStoreUnit struct {
	memory *Memory
}

// NewLoadStoreUnit constructs a LoadStoreUnit over the given memory.
func NewLoadStoreUnit(memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{memory: memory}
}

// ScaleFactor returns 1<<packedMode, the byte stride packed-mode
// loads/stores apply to the address-generation index operand.
func ScaleFactor(packedMode uint32) uint32 {
	return 1 << packedMode
}

// Load performs the load named by memOp (spec.md §3's mem_op enumeration)
// and returns the zero/sign-extended 32-bit result.
func (lsu *LoadStoreUnit) Load(memOp uint32, addr uint32) (uint32, error) {
	switch memOp {
	case insts.MemLoad8:
		v, err := lsu.memory.Load8Signed(addr)
		return uint32(v), err
	case insts.MemLoadU8:
		v, err := lsu.memory.Load8(addr)
		return uint32(v), err
	case insts.MemLoad16:
		v, err := lsu.memory.Load16Signed(addr)
		return uint32(v), err
	case insts.MemLoadU16:
		v, err := lsu.memory.Load16(addr)
		return uint32(v), err
	case insts.MemLoad32:
		return lsu.memory.Load32(addr)
	case insts.MemLdea:
		return addr, nil
	default:
		return 0, nil
	}
}

// Store performs the store named by memOp.
func (lsu *LoadStoreUnit) Store(memOp uint32, addr uint32, value uint32) error {
	switch memOp {
	case insts.MemStore8:
		return lsu.memory.Store8(addr, uint8(value))
	case insts.MemStore16:
		return lsu.memory.Store16(addr, uint16(value))
	case insts.MemStore32:
		return lsu.memory.Store32(addr, value)
	default:
		return nil
	}
}

// IsStore reports whether memOp writes memory.
func IsStore(memOp uint32) bool {
	return memOp == insts.MemStore8 || memOp == insts.MemStore16 || memOp == insts.MemStore32
}
