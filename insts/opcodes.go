// Package insts defines the instruction encoding and the decoder that turns
// a 32-bit instruction word into an execution descriptor.
package insts

// Register configuration.
const (
	NumRegs               = 33 // R32 is PC (only implicitly addressable).
	Log2NumVectorElements = 4  // must be at least 4
	NumVectorElements     = 1 << Log2NumVectorElements
	NumVectorRegs         = 32
)

// Named scalar registers.
const (
	RegZ  = 0  // hard-wired zero
	RegTP = 27 // thread pointer
	RegFP = 28 // frame pointer
	RegSP = 29 // stack pointer
	RegLR = 30 // link register
	RegVL = 31 // vector length
	RegPC = 32 // program counter
)

// EX operations. Values match the reference MRISC32 simulator exactly so
// that the decoder's bit-level resolution logic lines up 1:1.
const (
	OpLDI     = 0x01
	OpADDPC   = 0x02
	OpADDPCHI = 0x03

	OpAND  = 0x10
	OpOR   = 0x11
	OpXOR  = 0x12
	OpEBF  = 0x13
	OpEBFU = 0x14
	OpMKBF = 0x15

	OpADD  = 0x16
	OpSUB  = 0x17
	OpMIN  = 0x18
	OpMAX  = 0x19
	OpMINU = 0x1a
	OpMAXU = 0x1b

	OpSEQ  = 0x1c
	OpSNE  = 0x1d
	OpSLT  = 0x1e
	OpSLTU = 0x1f
	OpSLE  = 0x20
	OpSLEU = 0x21

	OpSHUF   = 0x22
	OpXCHGSR = 0x24

	OpMUL  = 0x27
	OpDIV  = 0x28
	OpDIVU = 0x29
	OpREM  = 0x2a
	OpREMU = 0x2b

	OpMADD = 0x2c
	OpSEL  = 0x2e
	OpIBF  = 0x2f

	OpMULHI  = 0x30
	OpMULHIU = 0x31
	OpMULQ   = 0x32
	OpMULQR  = 0x33

	OpPACK     = 0x3a
	OpPACKS    = 0x3b
	OpPACKSU   = 0x3c
	OpPACKHI   = 0x3d
	OpPACKHIR  = 0x3e
	OpPACKHIUR = 0x3f

	OpFMIN    = 0x40
	OpFMAX    = 0x41
	OpFSEQ    = 0x42
	OpFSNE    = 0x43
	OpFSLT    = 0x44
	OpFSLE    = 0x45
	OpFSUNORD = 0x46
	OpFSORD   = 0x47

	OpITOF  = 0x48
	OpUTOF  = 0x49
	OpFTOI  = 0x4a
	OpFTOU  = 0x4b
	OpFTOIR = 0x4c
	OpFTOUR = 0x4d
	OpFPACK = 0x4e

	OpFADD = 0x50
	OpFSUB = 0x51
	OpFMUL = 0x52
	OpFDIV = 0x53

	OpADDS   = 0x60
	OpADDSU  = 0x61
	OpADDH   = 0x62
	OpADDHU  = 0x63
	OpADDHR  = 0x64
	OpADDHUR = 0x65
	OpSUBS   = 0x66
	OpSUBSU  = 0x67
	OpSUBH   = 0x68
	OpSUBHU  = 0x69
	OpSUBHR  = 0x6a
	OpSUBHUR = 0x6b

	// Two-operand type-B operations (bits[6:0] in 0x7C..0x7E, selector in
	// bits[13:8], taken from instruction bits[14:9]).
	OpREV    = 0x007c
	OpCLZ    = 0x017c
	OpPOPCNT = 0x027c

	OpFUNPL = 0x007d
	OpFUNPH = 0x017d
	OpFSQRT = 0x087d

	OpSYNC   = 0x007e
	OpCCTRL  = 0x017e
	OpCRC32C = 0x027e
	// OpCRC32 is the plain (non-Castagnoli) CRC-32 kernel. The reference
	// simulator's cpu_simple.cpp dispatches a distinct EX_OP_CRC32 case
	// next to EX_OP_CRC32C, but its defining constant was not present in
	// the retrieved cpu.hpp snapshot; this module assigns it the next
	// free slot in the same two-operand type-B selector space (see
	// DESIGN.md).
	OpCRC32 = 0x037e
)

// Memory operations.
const (
	MemNone    = 0x0
	MemLoad8   = 0x1
	MemLoad16  = 0x2
	MemLoad32  = 0x3
	MemLoadU8  = 0x5
	MemLoadU16 = 0x6
	MemLdea    = 0x7
	MemStore8  = 0x9
	MemStore16 = 0xa
	MemStore32 = 0xb
)

// Packed operation modes.
const (
	PackedNone     = 0
	PackedByte     = 1
	PackedHalfWord = 2
)

// VectorMode selects how an instruction's lanes address their operands.
// Mode 2's second operand (reg3) is read once as a scalar (a memory op
// reinterprets it as a per-lane address stride); mode 3's reg3 is a genuine
// per-lane vector operand. See insts.Decode and original_source/sim/
// cpu_simple.cpp's reg3_is_vector = (vector_mode & 1) != 0.
type VectorMode int

const (
	VectorScalar VectorMode = iota
	VectorFolding
	VectorScalarOperand
	VectorVectorOperand
)

// Class identifies one of the five instruction encoding classes.
type Class int

const (
	ClassA Class = iota
	ClassB
	ClassC
	ClassD
	ClassE
)

func (c Class) String() string {
	switch c {
	case ClassA:
		return "A"
	case ClassB:
		return "B"
	case ClassC:
		return "C"
	case ClassD:
		return "D"
	case ClassE:
		return "E"
	default:
		return "?"
	}
}

// Cond identifies a conditional-branch test.
type Cond int

const (
	CondBZ Cond = iota
	CondNZ
	CondS
	CondNS
	CondLT
	CondGE
	CondLE
	CondGT
)
