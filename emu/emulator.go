package emu

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mr32/mr32sim/insts"
)

// FaultError wraps a memory fault with the register dump the interpreter
// captured at the instruction-cycle boundary, per spec.md §7.
type FaultError struct {
	Cause        error
	RegisterDump string
}

func (f *FaultError) Error() string {
	return fmt.Sprintf("%s\n%s", f.Cause, f.RegisterDump)
}

func (f *FaultError) Unwrap() error { return f.Cause }

// Emulator executes MR32 instructions functionally: one cycle per executed
// lane, so a scalar instruction spends one cycle and a vector instruction
// of effective length L spends L (spec.md §4.5).
type Emulator struct {
	regs  *RegFile
	vregs *VectorRegFile

	memory    *Memory
	alu       *ALU
	lsu       *LoadStoreUnit
	branch    *BranchUnit
	syscalls  *SyscallTrap

	trace *TraceSink
	mmio  *MMIOUpdater
	perf  *PerfProfiler

	cycles          uint64
	fetched         uint64
	vectorLoopCount uint64

	maxCycles         int64 // < 0 means unlimited
	externalTerminate bool
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMaxCycles bounds the interpreter to at most n cycles; n < 0 (the
// default) means unlimited.
func WithMaxCycles(n int64) EmulatorOption {
	return func(e *Emulator) { e.maxCycles = n }
}

// WithTrace enables debug-trace recording to sink, per spec.md §4.7.
func WithTrace(sink *TraceSink) EmulatorOption {
	return func(e *Emulator) { e.trace = sink }
}

// WithPerfProfiler attributes every fetched instruction's cycle to a
// perf-symbol bucket, per SPEC_FULL.md's performance-symbol profiler.
func WithPerfProfiler(p *PerfProfiler) EmulatorOption {
	return func(e *Emulator) { e.perf = p }
}

// WithMMIO enables cycle-counter publishing into the MMIO band starting at
// base, per spec.md §5.
func WithMMIO(base uint32) EmulatorOption {
	return func(e *Emulator) { e.mmio = NewMMIOUpdater(e.memory, base, true) }
}

// WithEntryPoint sets the initial program counter.
func WithEntryPoint(pc uint32) EmulatorOption {
	return func(e *Emulator) { e.regs.SetPC(pc) }
}

// WithStackPointer sets the initial R29 (stack pointer) value.
func WithStackPointer(sp uint32) EmulatorOption {
	return func(e *Emulator) { e.regs.Write(insts.RegSP, sp) }
}

// NewEmulator constructs an Emulator over the given memory and syscall
// trap. vectorLanes must be a power of two, at least insts.NumVectorElements
// (pass insts.NumVectorElements for the default machine configuration).
func NewEmulator(memory *Memory, syscalls *SyscallTrap, vectorLanes int, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regs:      &RegFile{},
		vregs:     NewVectorRegFile(vectorLanes),
		memory:    memory,
		alu:       NewALU(),
		lsu:       NewLoadStoreUnit(memory),
		branch:    NewBranchUnit(),
		syscalls:  syscalls,
		maxCycles: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Regs exposes the scalar register file, mainly for inspection by callers
// building a register dump or seeding argv.
func (e *Emulator) Regs() *RegFile { return e.regs }

// VectorRegs exposes the vector register file.
func (e *Emulator) VectorRegs() *VectorRegFile { return e.vregs }

// Cycles returns the number of lanes executed so far: one per scalar
// instruction, L per vector instruction of effective length L, per
// spec.md §3.
func (e *Emulator) Cycles() uint64 { return e.cycles }

// Fetched returns the number of instructions fetched so far. Unlike
// Cycles, this counts once per instruction regardless of vector length.
// A trap dispatch is not itself fetched and counts toward neither; the
// instruction Step then runs from the return address is counted as usual.
func (e *Emulator) Fetched() uint64 { return e.fetched }

// VectorLoopCount returns the running sum of vector lengths processed:
// unchanged by scalar instructions, incremented by L for every vector
// instruction regardless of whether its lane loop ran to completion or
// stopped early on the cycle budget, per spec.md §3.
func (e *Emulator) VectorLoopCount() uint64 { return e.vectorLoopCount }

// RequestTermination lets an external caller stop the interpreter
// cooperatively; checked at the top of the next cycle, per spec.md §5.
func (e *Emulator) RequestTermination() { e.externalTerminate = true }

// Terminated reports whether the interpreter has stopped, either because
// the guest called exit or because termination was externally requested.
func (e *Emulator) Terminated() bool {
	return e.syscalls.Terminated() || e.externalTerminate
}

// ExitCode returns the guest's requested exit status (valid once
// Terminated is true via the guest's own exit syscall; 0 otherwise, per
// spec.md §7's "exit code = last completed sim_exit code, or 0 if none").
func (e *Emulator) ExitCode() uint32 {
	if e.syscalls.Terminated() {
		return e.syscalls.ExitCode()
	}
	return 0
}

// Run executes cycles until termination (guest exit, external request, or
// the configured cycle budget), returning a *FaultError if a memory fault
// occurred.
func (e *Emulator) Run() error {
	for !e.Terminated() {
		if err := e.Step(); err != nil {
			return err
		}
	}
	if e.trace != nil {
		_ = e.trace.Close()
	}
	return nil
}

// Step executes exactly one instruction: a syscall-trap dispatch followed
// immediately by the instruction now sitting at the guest's return address,
// or a plain fetch/decode/branch-precompute/vector-loop/PC-update sequence.
// A trap never ends the cycle on its own — it only rewrites PC to LR and
// falls through to fetch/execute whatever is there, matching
// original_source/sim/cpu_simple.cpp's run(), which has no early exit
// between the trap check and instruction fetch.
func (e *Emulator) Step() error {
	pc := e.regs.PC()

	if routine, ok := RoutineForPC(pc); ok {
		e.syscalls.Call(routine, e.regs)
		e.regs.SetPC(e.regs.Read(insts.RegLR))
		pc = e.regs.PC()
	}

	iword, err := e.memory.Load32(pc)
	if err != nil {
		return e.fault(err)
	}
	e.fetched++

	d := insts.Decode(iword)

	testRegVal := e.regs.Read(d.Reg1)
	jumpTargetReg := e.regs.Read(d.Reg1)
	nextPC, writeLink := e.branch.NextPC(d, pc, testRegVal, jumpTargetReg)
	if writeLink {
		e.regs.Write(insts.RegLR, pc+4)
	}

	if err := e.runVectorLoop(pc, d); err != nil {
		return e.fault(err)
	}

	e.regs.SetPC(nextPC)

	if e.perf != nil {
		e.perf.Tick(pc)
	}

	return nil
}

// effectiveVectorLength computes L = min(VL, N), halved again when folding,
// matching original_source/sim/cpu_simple.cpp's actual_vector_len.
func (e *Emulator) effectiveVectorLength(folding bool) uint32 {
	vl := e.regs.VL()
	n := uint32(e.vregs.Lanes)
	l := vl
	if n < l {
		l = n
	}
	if folding {
		l >>= 1
	}
	return l
}

// runVectorLoop drives the RF/EX/MEM/WB stages for one decoded instruction:
// once for a scalar instruction, L times (L/2 when folding) for a vector
// one, per spec.md §4.5 step 5. Each lane iteration counts one cycle and
// is checked against the configured cycle budget individually, so a
// vector instruction of length L spends exactly L cycles rather than one.
func (e *Emulator) runVectorLoop(pc uint32, d insts.Descriptor) error {
	isVectorOp := d.VecMode != insts.VectorScalar
	folding := d.VecMode == insts.VectorFolding
	vectorLen := e.effectiveVectorLength(folding)

	iterations := uint32(1)
	if isVectorOp {
		iterations = vectorLen
	}

	srcAValid := d.Class == insts.ClassA || d.Class == insts.ClassB || d.Class == insts.ClassC
	srcBValid := d.Class == insts.ClassA
	srcCValid := IsStore(d.MemOp) || d.IsBranch || d.IsJump || isThreeSrcOp(d.ExOp)

	var addrOffset uint32
	for i := uint32(0); i < iterations; i++ {
		srcA := e.readLane(d.SrcA, int(i), folding, vectorLen)
		srcC := e.readLane(d.SrcC, int(i), false, 0)

		// operandB is whatever src_b would resolve to if this weren't a
		// strided vector memory op: the decoded immediate, or a plain
		// register read. A strided op instead feeds the running
		// addrOffset in as src_b and accumulates operandB as the stride
		// after the lane runs (insts.Decode's src_b_is_stride; spec.md
		// §4.5 step 5).
		var operandB uint32
		if d.SrcBIsImmediate {
			operandB = uint32(d.Immediate)
		} else {
			operandB = e.readLane(d.SrcB, int(i), false, 0)
		}
		srcB := operandB
		if d.SrcBIsVectorStride {
			srcB = addrOffset
		}

		if e.trace != nil {
			_ = e.trace.Append(TraceRecord{
				Valid:     true,
				SrcAValid: srcAValid,
				SrcBValid: srcBValid,
				SrcCValid: srcCValid,
				PC:        pc,
				SrcA:      srcA,
				SrcB:      srcB,
				SrcC:      srcC,
			})
		}

		result, _, err := e.execute(d, srcA, srcB, srcC)
		if err != nil {
			return err
		}

		// RegFile.Write already suppresses R0/PC; a vector Dst has no such
		// hardwired-zero lane, so the write always applies there.
		e.writeLane(d.Dst, int(i), result)

		if d.SrcBIsVectorStride {
			addrOffset += operandB
		}

		e.cycles++
		if e.maxCycles >= 0 && int64(e.cycles) >= e.maxCycles {
			e.externalTerminate = true
			break
		}
		if e.mmio != nil {
			e.mmio.PublishCycleCount(e.cycles)
		}
	}

	// vectorLoopCount accumulates the full intended lane count even when
	// the budget check above cut the loop short partway through, matching
	// cpu_simple.cpp's unconditional m_vector_loop_count += num_vector_loops.
	if isVectorOp {
		e.vectorLoopCount += uint64(iterations)
	}
	return nil
}

// isThreeSrcOp mirrors cpu_simple.cpp's is_3op_group: the opcode slots that
// read reg1 as a third source rather than (or in addition to) writing it —
// MADD/SEL/IBF (0x2c/0x2e/0x2f, reachable through either Class A's opcode
// field or Class C's top6 field, since the two numeric spaces coincide).
func isThreeSrcOp(exOp uint32) bool {
	switch exOp {
	case insts.OpMADD, insts.OpSEL, insts.OpIBF:
		return true
	default:
		return false
	}
}

// readLane reads operand `ref` for vector-loop iteration `i`. A folding
// instruction's SrcA addresses the *second* half of its vector register
// (lane vectorLen+i); every other read is a direct index.
func (e *Emulator) readLane(ref insts.RegRef, i int, folding bool, vectorLen uint32) uint32 {
	if !ref.IsVector {
		return e.regs.Read(ref.Index)
	}
	lane := i
	if folding {
		lane = int(vectorLen) + i
	}
	return e.vregs.Read(ref.Index, lane)
}

func (e *Emulator) writeLane(ref insts.RegRef, i int, value uint32) {
	if ref.IsVector {
		e.vregs.Write(ref.Index, i, value)
		return
	}
	e.regs.Write(ref.Index, value)
}

// execute runs the EX/MEM stages for one lane: address generation and the
// actual memory access for mem_op instructions, or dispatch to the
// arithmetic kernel otherwise. Returns the write-back value (and, for
// loads/LDEA, the computed address — exposed for tests/tracing, unused by
// the interpreter itself).
func (e *Emulator) execute(d insts.Descriptor, srcA, srcB, srcC uint32) (uint32, uint32, error) {
	if d.MemOp != insts.MemNone {
		addr := srcA + srcB*ScaleFactor(d.PackedMode)
		if IsStore(d.MemOp) {
			if err := e.lsu.Store(d.MemOp, addr, srcC); err != nil {
				return 0, addr, err
			}
			return 0, addr, nil
		}
		v, err := e.lsu.Load(d.MemOp, addr)
		return v, addr, err
	}

	return e.evalALU(d, srcA, srcB, srcC), 0, nil
}

// evalALU dispatches ex_op × packed_mode to the arithmetic kernel catalogue,
// per spec.md §4.3.
func (e *Emulator) evalALU(d insts.Descriptor, srcA, srcB, srcC uint32) uint32 {
	a, b, c, pm := srcA, srcB, srcC, d.PackedMode

	switch d.ExOp {
	case insts.OpXCHGSR:
		return e.xchgsr(a, b, d.SrcA.Index == insts.RegZ)
	case insts.OpADDPC, insts.OpADDPCHI:
		return a + b
	case insts.OpLDI:
		return b

	case insts.OpAND:
		return e.alu.AND(a, b, pm)
	case insts.OpOR:
		return e.alu.OR(a, b, pm)
	case insts.OpXOR:
		return e.alu.XOR(a, b, pm)
	case insts.OpEBF:
		return e.alu.EBF(a, b)
	case insts.OpEBFU:
		return e.alu.EBFU(a, b)
	case insts.OpMKBF:
		return e.alu.MKBF(a, b)
	case insts.OpIBF:
		return e.alu.IBF(a, b, c)

	case insts.OpADD:
		return e.alu.ADD(a, b, pm)
	case insts.OpSUB:
		return e.alu.SUB(a, b, pm)
	case insts.OpMIN:
		return e.alu.MIN(a, b, pm)
	case insts.OpMAX:
		return e.alu.MAX(a, b, pm)
	case insts.OpMINU:
		return e.alu.MINU(a, b, pm)
	case insts.OpMAXU:
		return e.alu.MAXU(a, b, pm)

	case insts.OpSEQ:
		return e.alu.SEQ(a, b, pm)
	case insts.OpSNE:
		return e.alu.SNE(a, b, pm)
	case insts.OpSLT:
		return e.alu.SLT(a, b, pm)
	case insts.OpSLTU:
		return e.alu.SLTU(a, b, pm)
	case insts.OpSLE:
		return e.alu.SLE(a, b, pm)
	case insts.OpSLEU:
		return e.alu.SLEU(a, b, pm)

	case insts.OpSHUF:
		return e.alu.SHUF(a, b)

	case insts.OpMUL:
		return e.alu.MUL(a, b, pm)
	case insts.OpMULHI:
		return e.alu.MULHI(a, b, pm)
	case insts.OpMULHIU:
		return e.alu.MULHIU(a, b, pm)
	case insts.OpMULQ:
		return e.alu.MULQ(a, b, pm)
	case insts.OpMULQR:
		return e.alu.MULQR(a, b, pm)
	case insts.OpMADD:
		return e.alu.MADD(a, b, c, pm)

	case insts.OpDIV:
		return e.alu.DIV(a, b)
	case insts.OpDIVU:
		return e.alu.DIVU(a, b)
	case insts.OpREM:
		return e.alu.REM(a, b)
	case insts.OpREMU:
		return e.alu.REMU(a, b)

	case insts.OpADDS:
		return e.alu.ADDS(a, b, pm)
	case insts.OpADDSU:
		return e.alu.ADDSU(a, b, pm)
	case insts.OpADDH:
		return e.alu.ADDH(a, b, pm)
	case insts.OpADDHU:
		return e.alu.ADDHU(a, b, pm)
	case insts.OpADDHR:
		return e.alu.ADDHR(a, b, pm)
	case insts.OpADDHUR:
		return e.alu.ADDHUR(a, b, pm)
	case insts.OpSUBS:
		return e.alu.SUBS(a, b, pm)
	case insts.OpSUBSU:
		return e.alu.SUBSU(a, b, pm)
	case insts.OpSUBH:
		return e.alu.SUBH(a, b, pm)
	case insts.OpSUBHU:
		return e.alu.SUBHU(a, b, pm)
	case insts.OpSUBHR:
		return e.alu.SUBHR(a, b, pm)
	case insts.OpSUBHUR:
		return e.alu.SUBHUR(a, b, pm)

	case insts.OpPACK:
		return e.alu.PACK(a, b, pm)
	case insts.OpPACKS:
		return e.alu.PACKS(a, b, pm)
	case insts.OpPACKSU:
		return e.alu.PACKSU(a, b, pm)
	case insts.OpPACKHI:
		return e.alu.PACKHI(a, b, pm)
	case insts.OpPACKHIR:
		return e.alu.PACKHIR(a, b, pm)
	case insts.OpPACKHIUR:
		return e.alu.PACKHIUR(a, b, pm)

	case insts.OpFMIN:
		return e.alu.FMIN(a, b, pm)
	case insts.OpFMAX:
		return e.alu.FMAX(a, b, pm)
	case insts.OpFSEQ:
		return e.alu.FSEQ(a, b, pm)
	case insts.OpFSNE:
		return e.alu.FSNE(a, b, pm)
	case insts.OpFSLT:
		return e.alu.FSLT(a, b, pm)
	case insts.OpFSLE:
		return e.alu.FSLE(a, b, pm)
	case insts.OpFSUNORD:
		return e.alu.FSUNORD(a, b, pm)
	case insts.OpFSORD:
		return e.alu.FSORD(a, b, pm)

	case insts.OpITOF:
		return e.alu.ITOF(a, b, pm)
	case insts.OpUTOF:
		return e.alu.UTOF(a, b, pm)
	case insts.OpFTOI:
		return e.alu.FTOI(a, b, pm)
	case insts.OpFTOU:
		return e.alu.FTOU(a, b, pm)
	case insts.OpFTOIR:
		return e.alu.FTOIR(a, b, pm)
	case insts.OpFTOUR:
		return e.alu.FTOUR(a, b, pm)
	case insts.OpFPACK:
		return e.alu.FPACK(a, b, pm)

	case insts.OpFADD:
		return e.alu.FADD(a, b, pm)
	case insts.OpFSUB:
		return e.alu.FSUB(a, b, pm)
	case insts.OpFMUL:
		return e.alu.FMUL(a, b, pm)
	case insts.OpFDIV:
		return e.alu.FDIV(a, b, pm)

	case insts.OpSEL:
		return e.alu.SEL(a, b, c)

	case insts.OpREV:
		return e.alu.REV(a, pm)
	case insts.OpCLZ:
		return e.alu.CLZ(a, pm)
	case insts.OpPOPCNT:
		return e.alu.POPCNT(a, pm)
	case insts.OpFUNPL:
		return e.alu.FUNPL(a, pm)
	case insts.OpFUNPH:
		return e.alu.FUNPH(a, pm)
	case insts.OpFSQRT:
		return e.alu.FSQRT(a)

	case insts.OpSYNC, insts.OpCCTRL:
		// Not much to do here (original_source/sim/cpu_simple.cpp treats
		// both as no-ops in a single-core, single-threaded interpreter).
		return c
	case insts.OpCRC32C:
		return e.alu.CRC32C(a, c, pm)
	case insts.OpCRC32:
		return e.alu.CRC32(a, c, pm)

	default:
		// DECODE_INVALID: reserved/unassigned opcodes yield zero rather
		// than trap (spec.md §7).
		return 0
	}
}

// xchgsr implements the system-register exchange: read-then-write, with no
// writable registers currently (original_source/sim/cpu_simple.cpp's
// xchgsr). aIsZReg suppresses the write, matching the reference's
// src_reg_a.no == REG_Z guard — moot while every write is a no-op, but kept
// to preserve the read-then-write sequencing the reference documents.
func (e *Emulator) xchgsr(a, b uint32, aIsZReg bool) uint32 {
	var result uint32
	switch {
	case b == 0x00:
		result = 0x0000000f // CPU_FEATURES_0: VM|PM|FM|SM
	case b >= 0x01 && b <= 0x0f:
		result = 0 // CPU_FEATURES_1-15: reserved
	case b == 0x10:
		result = uint32(e.vregs.Lanes) // MAX_VL
	case b == 0x11:
		result = log2(uint32(e.vregs.Lanes)) // LOG2_MAX_VL
	default:
		result = 0
	}
	_ = aIsZReg // no system register is currently writable
	return result
}

func log2(n uint32) uint32 {
	var l uint32
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// fault builds a *FaultError carrying the register dump spec.md §7 requires
// (R1..R26, TP, FP, SP, LR, VL, PC in hex) and logs it before returning.
func (e *Emulator) fault(cause error) error {
	dump := e.registerDump()
	ferr := &FaultError{Cause: cause, RegisterDump: dump}
	log.Error().
		Uint32("pc", e.regs.PC()).
		Uint64("cycle", e.cycles).
		Err(cause).
		Msg("fatal fault")
	return errors.WithStack(ferr)
}

func (e *Emulator) registerDump() string {
	var b strings.Builder
	for i := 1; i <= 26; i++ {
		fmt.Fprintf(&b, "R%-3d= 0x%08x\n", i, e.regs.Read(uint8(i)))
	}
	fmt.Fprintf(&b, "TP  = 0x%08x\n", e.regs.Read(insts.RegTP))
	fmt.Fprintf(&b, "FP  = 0x%08x\n", e.regs.Read(insts.RegFP))
	fmt.Fprintf(&b, "SP  = 0x%08x\n", e.regs.Read(insts.RegSP))
	fmt.Fprintf(&b, "LR  = 0x%08x\n", e.regs.Read(insts.RegLR))
	fmt.Fprintf(&b, "VL  = 0x%08x\n", e.regs.VL())
	fmt.Fprintf(&b, "PC  = 0x%08x\n", e.regs.PC())
	return b.String()
}
