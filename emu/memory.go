package emu

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

// ErrBounds is returned when an access falls outside the allocated RAM.
var ErrBounds = errors.New("BOUNDS_FAULT")

// ErrAlignment is returned when a sub-word access is not naturally aligned.
var ErrAlignment = errors.New("ALIGNMENT_FAULT")

// Memory is a flat, byte-addressable, little-endian RAM. Grounded on
// original_source/sim/ram.hpp's ram_t: the same load8/16/32,
// load8_signed/load16_signed, store8/16/32, and valid_range contract,
// translated to Go error returns instead of C++ exceptions.
type Memory struct {
	data []byte
}

// NewMemory allocates a zeroed RAM of the given size in bytes.
func NewMemory(size uint32) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Size returns the RAM size in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// ValidRange reports whether a `size`-byte access at `addr` fits in RAM.
func (m *Memory) ValidRange(addr uint32, size uint32) bool {
	end := uint64(addr) + uint64(size)
	return end <= uint64(len(m.data))
}

func (m *Memory) checkAccess(addr, size uint32) error {
	if !m.ValidRange(addr, size) {
		return errors.Wrapf(ErrBounds, "addr=0x%08x size=%d ram_size=%d", addr, size, len(m.data))
	}
	if size > 1 && addr%size != 0 {
		return errors.Wrapf(ErrAlignment, "addr=0x%08x size=%d", addr, size)
	}
	return nil
}

// Load8 reads one byte.
func (m *Memory) Load8(addr uint32) (uint8, error) {
	if err := m.checkAccess(addr, 1); err != nil {
		return 0, err
	}
	return m.data[addr], nil
}

// Load8Signed reads one byte, sign-extended to 32 bits.
func (m *Memory) Load8Signed(addr uint32) (int32, error) {
	v, err := m.Load8(addr)
	if err != nil {
		return 0, err
	}
	return int32(int8(v)), nil
}

// Load16 reads a little-endian half-word. addr must be 2-byte aligned.
func (m *Memory) Load16(addr uint32) (uint16, error) {
	if err := m.checkAccess(addr, 2); err != nil {
		return 0, err
	}
	return uint16(m.data[addr]) | uint16(m.data[addr+1])<<8, nil
}

// Load16Signed reads a little-endian half-word, sign-extended to 32 bits.
func (m *Memory) Load16Signed(addr uint32) (int32, error) {
	v, err := m.Load16(addr)
	if err != nil {
		return 0, err
	}
	return int32(int16(v)), nil
}

// Load32 reads a little-endian word. addr must be 4-byte aligned.
func (m *Memory) Load32(addr uint32) (uint32, error) {
	if err := m.checkAccess(addr, 4); err != nil {
		return 0, err
	}
	return uint32(m.data[addr]) | uint32(m.data[addr+1])<<8 |
		uint32(m.data[addr+2])<<16 | uint32(m.data[addr+3])<<24, nil
}

// Store8 writes one byte.
func (m *Memory) Store8(addr uint32, v uint8) error {
	if err := m.checkAccess(addr, 1); err != nil {
		return err
	}
	m.data[addr] = v
	return nil
}

// Store16 writes a little-endian half-word. addr must be 2-byte aligned.
func (m *Memory) Store16(addr uint32, v uint16) error {
	if err := m.checkAccess(addr, 2); err != nil {
		return err
	}
	m.data[addr] = byte(v)
	m.data[addr+1] = byte(v >> 8)
	return nil
}

// Store32 writes a little-endian word. addr must be 4-byte aligned.
func (m *Memory) Store32(addr uint32, v uint32) error {
	if err := m.checkAccess(addr, 4); err != nil {
		return err
	}
	m.data[addr] = byte(v)
	m.data[addr+1] = byte(v >> 8)
	m.data[addr+2] = byte(v >> 16)
	m.data[addr+3] = byte(v >> 24)
	return nil
}

// RawByte reads a single byte without alignment/bounds enforcement beyond
// the slice bounds, used by the syscall trap when it streams guest buffers.
func (m *Memory) RawByte(addr uint32) (byte, error) {
	if uint64(addr) >= uint64(len(m.data)) {
		return 0, errors.Wrapf(ErrBounds, "addr=0x%08x", addr)
	}
	return m.data[addr], nil
}

// WriteRawByte writes a single byte without alignment enforcement.
func (m *Memory) WriteRawByte(addr uint32, v byte) error {
	if uint64(addr) >= uint64(len(m.data)) {
		return errors.Wrapf(ErrBounds, "addr=0x%08x", addr)
	}
	m.data[addr] = v
	return nil
}

// ReadCString reads a NUL-terminated byte string starting at addr.
func (m *Memory) ReadCString(addr uint32) (string, error) {
	var buf []byte
	for {
		b, err := m.RawByte(addr)
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
		addr++
	}
	return string(buf), nil
}

// ReadBytes reads `n` raw bytes starting at addr, validating the whole range
// up front (used for read/write syscall buffers).
func (m *Memory) ReadBytes(addr uint32, n uint32) ([]byte, error) {
	if !m.ValidRange(addr, n) {
		return nil, errors.Wrapf(ErrBounds, "addr=0x%08x size=%d", addr, n)
	}
	out := make([]byte, n)
	copy(out, m.data[addr:addr+n])
	return out, nil
}

// WriteBytes writes raw bytes starting at addr, validating the whole range
// up front.
func (m *Memory) WriteBytes(addr uint32, data []byte) error {
	if !m.ValidRange(addr, uint32(len(data))) {
		return errors.Wrapf(ErrBounds, "addr=0x%08x size=%d", addr, len(data))
	}
	copy(m.data[addr:], data)
	return nil
}

// AtomicStoreWord publishes a 32-bit-aligned word using a relaxed atomic
// store, for the multi-threaded MMIO contract in spec.md §5/§9 ("use
// relaxed atomic 32-bit stores/loads on the designated MMIO offsets; no
// locks; no ordering beyond single-word atomicity"). addr must be within
// range and 4-byte aligned; callers (MMIOUpdater) check ValidRange first.
func (m *Memory) AtomicStoreWord(addr uint32, v uint32) {
	p := (*uint32)(unsafe.Pointer(&m.data[addr]))
	atomic.StoreUint32(p, v)
}

// AtomicLoadWord reads a 32-bit-aligned word with a relaxed atomic load.
func (m *Memory) AtomicLoadWord(addr uint32) uint32 {
	p := (*uint32)(unsafe.Pointer(&m.data[addr]))
	return atomic.LoadUint32(p)
}
