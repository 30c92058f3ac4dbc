// Package loader turns a guest binary on disk into a set of loadable
// segments plus an entry point: a minimal ELF32 section loader, with a raw
// flat-binary fallback for images that carry no ELF header at all.
package loader

import (
	"debug/elf"
	"io"

	"github.com/pkg/errors"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// DefaultLoadAddr is the conventional program/ROM load address (spec.md §6's
// memory map). Load and LoadRaw take the load address as a parameter and do
// not read this constant themselves; an ELF file's entry point always comes
// from its header.
const DefaultLoadAddr = 0x00000200

// Segment represents a loadable segment from a guest binary.
type Segment struct {
	// VirtAddr is the address where this segment should be loaded.
	VirtAddr uint32
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint32
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded binary ready for execution.
type Program struct {
	// EntryPoint is the address where execution should begin.
	EntryPoint uint32
	// Segments contains all loadable segments.
	Segments []Segment
}

// ErrNot32Bit is returned when an ELF file's class is not ELFCLASS32.
var ErrNot32Bit = errors.New("not a 32-bit ELF file")

// Load parses path as a 32-bit ELF binary. If debug/elf cannot open the file
// as ELF at all (no ELF magic, or a header it rejects), it falls back to
// loading the file as a flat raw binary image at addr (spec.md §1's "minimal ELF32 section loader
// and a raw binary fallback").
func Load(path string, addr uint32) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return LoadRaw(path, addr)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, ErrNot32Bit
	}

	prog := &Program{EntryPoint: uint32(f.Entry)}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, errors.Wrapf(err, "reading segment at 0x%x", phdr.Vaddr)
			}
			if uint64(n) != phdr.Filesz {
				return nil, errors.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: uint32(phdr.Vaddr),
			Data:     data,
			MemSize:  uint32(phdr.Memsz),
			Flags:    flags,
		})
	}

	return prog, nil
}
