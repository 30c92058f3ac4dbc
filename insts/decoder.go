package insts

// RegRef names one operand: a scalar register index, or a vector register
// index when IsVector is true.
type RegRef struct {
	Index    uint8
	IsVector bool
}

// Descriptor is the execution descriptor produced by Decode, matching the
// fields enumerated for the data model's "execution descriptor".
type Descriptor struct {
	Class Class
	Word  uint32

	Reg1, Reg2, Reg3 uint8

	SrcA, SrcB, SrcC RegRef
	Dst              RegRef

	SrcBIsImmediate    bool
	SrcBIsVectorStride bool

	Immediate int32

	ExOp       uint32
	MemOp      uint32
	PackedMode uint32
	VecMode    VectorMode

	IsBranch bool
	IsJump   bool
	IsLink   bool
	Cond     Cond
}

// signExtend sign-extends the low `bits` bits of v to a full int32.
func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// ClassOf classifies a raw instruction word into one of the five encoding
// classes described in the instruction-encoding section.
func ClassOf(word uint32) Class {
	if (word & 0xFC00007C) == 0x0000007C {
		return ClassB
	}
	top6 := (word >> 26) & 0x3F
	if top6 == 0 {
		return ClassA
	}
	if top6 >= 0x01 && top6 <= 0x2F {
		return ClassC
	}
	top3 := (word >> 29) & 0x7
	if top3 == 0x6 {
		// bits[28:26] distinguishes Class D (subroutine/LDI/ADDPC family)
		// from Class E (conditional branch): E claims the final slot.
		if (word>>26)&0x7 == 0x7 {
			return ClassE
		}
		return ClassD
	}
	return ClassA
}

// Decode turns a raw 32-bit instruction word into an execution descriptor.
func Decode(word uint32) Descriptor {
	class := ClassOf(word)
	d := Descriptor{Class: class, Word: word}

	reg1 := uint8((word >> 21) & 0x1F)
	reg2 := uint8((word >> 16) & 0x1F)
	reg3 := uint8((word >> 10) & 0x1F)
	d.Reg1, d.Reg2, d.Reg3 = reg1, reg2, reg3

	switch class {
	case ClassA:
		decodeClassA(word, &d)
	case ClassB:
		decodeClassB(word, &d)
	case ClassC:
		decodeClassC(word, &d)
	case ClassD:
		decodeClassD(word, &d)
	case ClassE:
		decodeClassE(word, &d)
	}

	// src_b_is_stride (cpu_simple.cpp): a vector memory op whose second
	// source is itself scalar reinterprets that operand as a per-lane
	// address stride rather than a flat operand-B value. This is computed
	// once, generically, rather than per class, since every class feeds
	// the same SrcB/MemOp/VecMode fields into it.
	isVectorOp := d.VecMode != VectorScalar
	isMemOp := d.MemOp != MemNone
	if isVectorOp && isMemOp && !d.SrcB.IsVector {
		d.SrcBIsVectorStride = true
	}
	return d
}

func decodeClassA(word uint32, d *Descriptor) {
	vmode := (word >> 14) & 0x3
	pmode := (word >> 7) & 0x3
	opcode := word & 0x7F

	d.VecMode = VectorMode(vmode)
	d.PackedMode = pmode

	// bits[6:3]==0 with bits[2:0]!=0 is the load family; bits[6:3]==1 is the
	// store family (original_source/sim/cpu_simple.cpp's is_ldx/is_stx).
	// Everything else is an ALU opcode living in the same bits[6:0] slot.
	isLoad := word&0x78 == 0 && word&0x7 != 0
	isStore := word&0x78 == 0x08
	isMemOp := isLoad || isStore

	switch {
	case isMemOp:
		d.MemOp = opcode
		d.ExOp = OpOR
	default:
		if (word>>4)&0x1F != 0 {
			d.ExOp = opcode
		} else {
			d.ExOp = OpOR
		}
		d.MemOp = MemNone
	}

	isVectorOp := vmode != 0
	// reg2_is_vector = is_vector_op && !is_mem_op: a vector memory op's base
	// address (reg2) stays scalar even while the rest of the instruction is
	// vector, since only the per-lane stride varies the effective address.
	// reg3_is_vector = (vector_mode & 1) != 0: true only at mode 1 (folding,
	// where reg3 names the same vector register folded against) and mode 3;
	// at mode 2 reg3 is read as a single scalar value (broadcast or, for a
	// memory op, the per-lane stride) — see cpu_simple.cpp's reg1/2/3_is_vector.
	d.SrcA = RegRef{Index: d.Reg2, IsVector: isVectorOp && !isMemOp}
	d.SrcB = RegRef{Index: d.Reg3, IsVector: vmode&0x1 != 0}
	d.SrcC = RegRef{Index: d.Reg1, IsVector: isVectorOp}
	if isStore {
		d.Dst = RegRef{Index: RegZ}
	} else {
		d.Dst = RegRef{Index: d.Reg1, IsVector: isVectorOp}
	}
}

func decodeClassB(word uint32, d *Descriptor) {
	// Classes B and C share a 1-bit vector flag at bit 15, but the reference
	// extracts it through the same `(iword>>14) & vec_mask` shift Class A
	// uses, with vec_mask=2 — so the flag surfaces as mode value 2 (true
	// "vector op, scalar operand"), never mode 1 (folding needs the 2-bit
	// field Class A has). Folding is therefore a Class-A-only concept.
	vmode := (word >> 14) & 0x2
	pmode := (word >> 7) & 0x3
	hiOp := (word >> 9) & 0x3F
	lo := word & 0x7F

	d.VecMode = VectorMode(vmode)
	d.PackedMode = pmode
	d.ExOp = ((hiOp << 8) | lo) & 0x3FFF

	isVectorOp := vmode != 0
	d.Dst = RegRef{Index: d.Reg1, IsVector: isVectorOp}
	d.SrcA = RegRef{Index: d.Reg2, IsVector: isVectorOp}
	// src_reg_c is always reg1 (cpu_simple.cpp reads it unconditionally,
	// regardless of whether the opcode actually consumes it); CRC32/CRC32C
	// read their running state from it.
	d.SrcC = RegRef{Index: d.Reg1, IsVector: isVectorOp}
}

// loadStoreOpcodeMax is the highest Class-C top6 opcode treated as a
// load/store using the narrower I15 immediate rather than I15HL.
const loadStoreOpcodeMax = 0x0F

func decodeClassC(word uint32, d *Descriptor) {
	top6 := (word >> 26) & 0x3F
	imm16 := word & 0xFFFF
	// Same 1-bit vector flag, same shift-through-vec_mask=2 convention as
	// Class B; see decodeClassB.
	vmode := (word >> 14) & 0x2
	d.VecMode = VectorMode(vmode)
	isVectorOp := vmode != 0

	isLoadStore := top6 >= 0x01 && top6 <= loadStoreOpcodeMax
	if isLoadStore {
		d.Immediate = signExtend(imm16&0x7FFF, 15)
		d.MemOp = top6
		d.ExOp = OpOR
	} else {
		h := (imm16 >> 14) & 0x1
		low14 := imm16 & 0x3FFF
		if h == 1 {
			d.Immediate = int32(low14 << 18)
		} else {
			d.Immediate = signExtend(low14, 14)
		}
		d.ExOp = top6
		d.MemOp = MemNone
	}

	// reg2_is_vector = is_vector_op && !is_mem_op: a vector load/store's base
	// address register stays scalar (see decodeClassA).
	d.SrcA = RegRef{Index: d.Reg2, IsVector: isVectorOp && !isLoadStore}
	d.SrcBIsImmediate = true
	d.SrcC = RegRef{Index: d.Reg1, IsVector: isVectorOp}
	isStore := d.MemOp >= MemStore8 && d.MemOp != MemNone
	if isStore {
		d.Dst = RegRef{Index: RegZ}
	} else {
		d.Dst = RegRef{Index: d.Reg1, IsVector: isVectorOp}
	}
}

func decodeClassD(word uint32, d *Descriptor) {
	sub := (word >> 26) & 0x7
	imm21 := word & 0x1FFFFF

	switch sub {
	case 4:
		d.Dst = RegRef{Index: d.Reg1}
		d.SrcA = RegRef{Index: RegPC}
		d.ExOp = OpADDPC
		d.Immediate = signExtend(imm21<<2, 23)
	case 5:
		d.Dst = RegRef{Index: d.Reg1}
		d.SrcA = RegRef{Index: RegPC}
		d.ExOp = OpADDPCHI
		d.Immediate = int32(imm21 << 11)
	case 6:
		d.Dst = RegRef{Index: d.Reg1}
		d.ExOp = OpLDI
		h := (imm21 >> 20) & 0x1
		low := imm21 & 0xFFFFF
		if h == 1 {
			d.Immediate = int32(low << 12)
		} else {
			d.Immediate = signExtend(low, 20)
		}
	case 0, 1:
		// j/jl: reg1 names the jump's base register (src-C slot), with the
		// sentinel value 31 meaning "use PC" rather than reading R31;
		// reg1 is never the destination here (that is always discarded, as
		// the reference treats j/jl as a branch-class instruction).
		d.IsJump = true
		d.IsLink = sub == 1
		d.Dst = RegRef{Index: RegZ}
		d.SrcC = RegRef{Index: d.Reg1}
		d.Immediate = signExtend(imm21<<2, 23)
	case 2, 3:
		// ldwpc/stwpc: PC-relative word load/store, not named by spec.md's
		// truncated Class-D sub-select list but present in the reference
		// decoder (cpu_simple.cpp's is_ldwpc/is_stwpc) at these two slots,
		// immediately before addpc/addpchi/ldi.
		d.SrcA = RegRef{Index: RegPC}
		d.ExOp = OpOR
		d.Immediate = signExtend(imm21<<2, 23)
		if sub == 2 {
			d.MemOp = MemLoad32
			d.Dst = RegRef{Index: d.Reg1}
		} else {
			d.MemOp = MemStore32
			d.Dst = RegRef{Index: RegZ}
			d.SrcC = RegRef{Index: d.Reg1}
		}
	default:
		d.Dst = RegRef{Index: d.Reg1}
		d.ExOp = OpOR
	}
	d.SrcBIsImmediate = true
}

func decodeClassE(word uint32, d *Descriptor) {
	cond := (word >> 18) & 0x7
	imm18 := word & 0x3FFFF

	d.IsBranch = true
	d.Cond = Cond(cond)
	d.Immediate = signExtend(imm18<<2, 20)
	d.SrcA = RegRef{Index: d.Reg1}
}
