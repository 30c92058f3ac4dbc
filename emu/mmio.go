package emu

// MMIO offsets, relative to the MMIO band base (spec.md §6's memory map,
// `[0xC0000000, 0xC0000040)`), and the thread-shared offsets from §5
// (keyboard/mouse/frame-counter, written by an external input/graphics
// thread; CLKCNTLO/CLKCNTHI are written by the interpreter only).
const (
	MMIOBase = 0xC0000000

	OffsetClkCntLo    = 0x00
	OffsetClkCntHi    = 0x04
	OffsetCPUClk      = 0x08
	OffsetVRAMSize    = 0x0C
	OffsetFrameCount  = 0x20
	OffsetMousePos    = 0x34
	OffsetMouseButton = 0x38
	OffsetKeyRing     = 0x80
)

// MMIOUpdater publishes the cycle counter into the reserved MMIO band on
// every interpreter tick, using relaxed atomic word stores as spec.md §5
// and §9 require ("no locks; no ordering beyond single-word atomicity").
// It operates directly on the memory's backing bytes via atomic access to
// the 4-byte-aligned word, matching the reference's "naturally atomic on
// aligned 32-bit words" contract.
type MMIOUpdater struct {
	memory  *Memory
	base    uint32
	enabled bool
}

// NewMMIOUpdater constructs an updater writing into the MMIO band starting
// at base. Pass enabled=false to disable publishing entirely (e.g. when no
// MMIO band fits within a small configured RAM size).
func NewMMIOUpdater(memory *Memory, base uint32, enabled bool) *MMIOUpdater {
	return &MMIOUpdater{memory: memory, base: base, enabled: enabled}
}

// PublishCycleCount writes the low/high 32 bits of the cycle counter into
// CLKCNTLO/CLKCNTHI if the MMIO band is within the configured RAM.
func (m *MMIOUpdater) PublishCycleCount(cycles uint64) {
	if !m.enabled {
		return
	}
	m.storeWord(m.base+OffsetClkCntLo, uint32(cycles))
	m.storeWord(m.base+OffsetClkCntHi, uint32(cycles>>32))
}

func (m *MMIOUpdater) storeWord(addr uint32, v uint32) {
	if !m.memory.ValidRange(addr, 4) {
		return
	}
	// Memory.data is unexported; storeWord goes through the word-atomic
	// helper on Memory itself so both threads (interpreter and an
	// external graphics/input thread) share one synchronization point.
	m.memory.AtomicStoreWord(addr, v)
}
