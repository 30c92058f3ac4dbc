package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mr32/mr32sim/insts"
)

// encodeClassA packs a register-register ALU/memory instruction in the
// Class A layout: bits[31:26]=0, reg1[25:21], reg2[20:16], reg3[14:10],
// vm[15:14] overlapping reg3's top bit, pm[8:7], opcode[6:0]; the exact bit
// positions mirror insts.Decode's and insts.decodeClassA's extraction.
func encodeClassA(reg1, reg2, reg3 uint8, vmode uint32, pmode uint32, opcode uint32) uint32 {
	word := (uint32(reg1) & 0x1F) << 21
	word |= (uint32(reg2) & 0x1F) << 16
	word |= (uint32(reg3) & 0x1F) << 10
	word |= (vmode & 0x3) << 14
	word |= (pmode & 0x3) << 7
	word |= opcode & 0x7F
	return word
}

func encodeClassC(top6 uint32, reg1, reg2 uint8, vmode uint32, imm16 uint32) uint32 {
	word := (top6 & 0x3F) << 26
	word |= (uint32(reg1) & 0x1F) << 21
	word |= (uint32(reg2) & 0x1F) << 16
	word |= (vmode & 0x2) << 14
	word |= imm16 & 0xFFFF
	return word
}

// encodeClassB packs a two-operand type-B instruction: bits[6:0] carry the
// low 7 bits of exOp (always one of 0x7C/0x7D/0x7E, which is also what
// ClassOf keys off of), bits[14:9] carry the high 6 bits of exOp, and bit 15
// is the single-bit vector flag (decodeClassB's vmode, shifted through the
// same vec_mask=2 convention Class C uses).
func encodeClassB(reg1, reg2 uint8, vector bool, pmode uint32, exOp uint32) uint32 {
	hiOp := (exOp >> 8) & 0x3F
	lo := exOp & 0x7F
	word := (uint32(reg1) & 0x1F) << 21
	word |= (uint32(reg2) & 0x1F) << 16
	word |= (pmode & 0x3) << 7
	word |= hiOp << 9
	word |= lo
	if vector {
		word |= 1 << 15
	}
	return word
}

// classDE packs the top 6 bits shared by Class D and Class E: bits[31:29]
// are the fixed 0x6 marker ClassOf's top3 check requires, and bits[28:26]
// are the sub-selector (0-6 for Class D's various forms, 0x7 claiming
// Class E).
func classDE(subOrBranchMarker uint32, rest uint32) uint32 {
	return (uint32(0x6) << 29) | ((subOrBranchMarker & 0x7) << 26) | rest
}

var _ = Describe("ClassOf", func() {
	It("classifies a zero word (OR r0, r0, r0) as Class A", func() {
		Expect(insts.ClassOf(0)).To(Equal(insts.ClassA))
	})

	It("classifies a two-operand type-B opcode as Class B", func() {
		word := encodeClassB(1, 2, false, insts.PackedNone, insts.OpCLZ)
		Expect(insts.ClassOf(word)).To(Equal(insts.ClassB))
	})

	It("classifies a top6-in-[1,0x2F] word as Class C", func() {
		word := encodeClassC(0x01, 1, 2, 0, 0x0010)
		Expect(insts.ClassOf(word)).To(Equal(insts.ClassC))
	})

	It("classifies an ldi word as Class D", func() {
		// sub==6 (ldi): bits[28:26]==6, top3==0x6.
		word := classDE(6, 0)
		Expect(insts.ClassOf(word)).To(Equal(insts.ClassD))
	})

	It("classifies a conditional branch as Class E", func() {
		// top3==0x6 with bits[28:26]==0x7 claims Class E.
		word := classDE(0x7, 0)
		Expect(insts.ClassOf(word)).To(Equal(insts.ClassE))
	})
})

var _ = Describe("Decode", func() {
	Context("Class A", func() {
		It("decodes a plain scalar ADD", func() {
			word := encodeClassA(3, 1, 2, 0, insts.PackedNone, insts.OpADD)
			d := insts.Decode(word)

			Expect(d.Class).To(Equal(insts.ClassA))
			Expect(d.ExOp).To(Equal(uint32(insts.OpADD)))
			Expect(d.SrcA.Index).To(Equal(uint8(1)))
			Expect(d.SrcA.IsVector).To(BeFalse())
			Expect(d.SrcB.Index).To(Equal(uint8(2)))
			Expect(d.SrcB.IsVector).To(BeFalse())
			Expect(d.Dst.Index).To(Equal(uint8(3)))
			Expect(d.Dst.IsVector).To(BeFalse())
			Expect(d.SrcBIsImmediate).To(BeFalse())
		})

		It("marks every operand vector at vector_mode==3 (reg3_is_vector)", func() {
			word := encodeClassA(3, 1, 2, 3, insts.PackedNone, insts.OpADD)
			d := insts.Decode(word)

			Expect(d.SrcA.IsVector).To(BeTrue())
			Expect(d.SrcB.IsVector).To(BeTrue())
			Expect(d.Dst.IsVector).To(BeTrue())
		})

		It("keeps reg3 scalar at vector_mode==2 (scalar-operand vector op)", func() {
			word := encodeClassA(3, 1, 2, 2, insts.PackedNone, insts.OpADD)
			d := insts.Decode(word)

			Expect(d.SrcA.IsVector).To(BeTrue())
			Expect(d.SrcB.IsVector).To(BeFalse())
			Expect(d.Dst.IsVector).To(BeTrue())
		})

		It("recognizes a store and discards its destination", func() {
			// bits[6:3]==1 (0x08) selects the store family; low 3 bits pick
			// the width (store32 == 0xb, i.e. low3==3).
			word := encodeClassA(3, 1, 2, 0, insts.PackedNone, 0x08|0x3)
			d := insts.Decode(word)

			Expect(d.MemOp).To(Equal(uint32(insts.MemStore32)))
			Expect(d.Dst.Index).To(Equal(uint8(insts.RegZ)))
		})

		It("computes src_b_is_stride for a vector store whose stride operand is scalar", func() {
			word := encodeClassA(3, 1, 2, 2, insts.PackedNone, 0x08|0x3)
			d := insts.Decode(word)

			Expect(d.MemOp).To(Equal(uint32(insts.MemStore32)))
			Expect(d.SrcBIsVectorStride).To(BeTrue())
		})
	})

	Context("Class B", func() {
		It("decodes CLZ with its src_c reading reg1", func() {
			word := encodeClassB(5, 2, false, insts.PackedNone, insts.OpCLZ)
			d := insts.Decode(word)

			Expect(d.Class).To(Equal(insts.ClassB))
			Expect(d.ExOp).To(Equal(uint32(insts.OpCLZ) & 0x3FFF))
			Expect(d.SrcA.Index).To(Equal(uint8(2)))
			Expect(d.SrcC.Index).To(Equal(d.Reg1))
			Expect(d.Reg1).To(Equal(uint8(5)))
		})

		It("marks src_a/dst/src_c vector when the single vector bit is set", func() {
			word := encodeClassB(5, 2, true, insts.PackedNone, insts.OpPOPCNT)
			d := insts.Decode(word)

			Expect(d.ExOp).To(Equal(uint32(insts.OpPOPCNT) & 0x3FFF))
			Expect(d.SrcA.IsVector).To(BeTrue())
			Expect(d.Dst.IsVector).To(BeTrue())
			Expect(d.SrcC.IsVector).To(BeTrue())
		})
	})

	Context("Class C", func() {
		It("decodes a load/store using the 15-bit immediate", func() {
			word := encodeClassC(0x09, 3, 1, 0, 0x0010) // store8-ish top6 slot
			d := insts.Decode(word)

			Expect(d.Class).To(Equal(insts.ClassC))
			Expect(d.MemOp).To(Equal(uint32(0x09)))
			Expect(d.SrcBIsImmediate).To(BeTrue())
			Expect(d.Immediate).To(Equal(int32(0x0010)))
		})

		It("decodes a high-immediate ALU op using the 14-bit-shifted-by-18 form", func() {
			top6 := uint32(0x20) // an ALU (non load/store) selector
			imm16 := uint32(1)<<14 | 0x0001
			word := encodeClassC(top6, 3, 1, 0, imm16)
			d := insts.Decode(word)

			Expect(d.ExOp).To(Equal(top6))
			Expect(d.Immediate).To(Equal(int32(1 << 18)))
		})
	})

	Context("Class D", func() {
		It("decodes ldi with the high-immediate form", func() {
			h := uint32(1) << 20
			low := uint32(0xABCDE) & 0xFFFFF
			imm21 := h | low
			word := classDE(6, imm21)
			d := insts.Decode(word)

			Expect(d.Class).To(Equal(insts.ClassD))
			Expect(d.ExOp).To(Equal(uint32(insts.OpLDI)))
			Expect(d.Immediate).To(Equal(int32(low << 12)))
		})

		It("decodes jl with the PC sentinel when reg1==31", func() {
			reg1 := uint32(31) << 21
			word := classDE(1, reg1) // sub==1 is jl
			d := insts.Decode(word)

			Expect(d.Class).To(Equal(insts.ClassD))
			Expect(d.IsJump).To(BeTrue())
			Expect(d.IsLink).To(BeTrue())
			Expect(d.Reg1).To(Equal(uint8(31)))
		})
	})

	Context("Class E", func() {
		It("decodes a conditional branch with its test register as src_a", func() {
			word := classDE(0x7, uint32(1)<<21|(uint32(insts.CondNZ)<<18))
			d := insts.Decode(word)

			Expect(d.Class).To(Equal(insts.ClassE))
			Expect(d.IsBranch).To(BeTrue())
			Expect(d.Cond).To(Equal(insts.CondNZ))
			Expect(d.SrcA.Index).To(Equal(uint8(1)))
		})
	})
})
