package loader_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mr32/mr32sim/loader"
)

// buildELF32 assembles a minimal, valid 32-bit little-endian ELF executable
// with a single PT_LOAD segment, for exercising loader.Load without needing
// a real toolchain-produced binary on disk.
func buildELF32(entry, vaddr uint32, flags uint32, payload []byte) []byte {
	const ehdrSize = 52
	const phdrSize = 32

	var ident [elf.EI_NIDENT]byte
	copy(ident[:4], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	ehdr := elf.Header32{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   0,
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     ehdrSize,
		Shoff:     0,
		Flags:     0,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     1,
		Shentsize: 0,
		Shnum:     0,
		Shstrndx:  0,
	}

	phdr := elf.Prog32{
		Type:   uint32(elf.PT_LOAD),
		Off:    ehdrSize + phdrSize,
		Vaddr:  vaddr,
		Paddr:  vaddr,
		Filesz: uint32(len(payload)),
		Memsz:  uint32(len(payload)),
		Flags:  flags,
		Align:  4,
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, ehdr)
	_ = binary.Write(&buf, binary.LittleEndian, phdr)
	buf.Write(payload)
	return buf.Bytes()
}

var _ = Describe("ELF loader", func() {
	It("loads the entry point and one PT_LOAD segment", func() {
		payload := []byte{0x01, 0x02, 0x03, 0x04}
		data := buildELF32(0x400, 0x200, uint32(elf.PF_R|elf.PF_X), payload)

		path := filepath.Join(GinkgoT().TempDir(), "a.elf")
		Expect(os.WriteFile(path, data, 0o644)).To(Succeed())

		prog, err := loader.Load(path, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.EntryPoint).To(Equal(uint32(0x400)))
		Expect(prog.Segments).To(HaveLen(1))
		Expect(prog.Segments[0].VirtAddr).To(Equal(uint32(0x200)))
		Expect(prog.Segments[0].Data).To(Equal(payload))
		Expect(prog.Segments[0].Flags & loader.SegmentFlagRead).NotTo(BeZero())
		Expect(prog.Segments[0].Flags & loader.SegmentFlagExecute).NotTo(BeZero())
		Expect(prog.Segments[0].Flags & loader.SegmentFlagWrite).To(BeZero())
	})

	It("reports MemSize equal to the file payload when there is no BSS tail", func() {
		payload := []byte{0xAA, 0xBB}
		data := buildELF32(0x200, 0x1000, uint32(elf.PF_R|elf.PF_W), payload)

		path := filepath.Join(GinkgoT().TempDir(), "b.elf")
		Expect(os.WriteFile(path, data, 0o644)).To(Succeed())

		prog, err := loader.Load(path, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments[0].MemSize).To(Equal(uint32(len(payload))))
	})

	It("rejects a non-32-bit ELF file", func() {
		var ident [elf.EI_NIDENT]byte
		copy(ident[:4], elf.ELFMAG)
		ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
		ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
		ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

		hdr := elf.Header64{
			Ident:     ident,
			Type:      uint16(elf.ET_EXEC),
			Version:   uint32(elf.EV_CURRENT),
			Ehsize:    64,
			Phentsize: 56,
		}
		var buf bytes.Buffer
		_ = binary.Write(&buf, binary.LittleEndian, hdr)

		path := filepath.Join(GinkgoT().TempDir(), "c.elf")
		Expect(os.WriteFile(path, buf.Bytes(), 0o644)).To(Succeed())

		_, err := loader.Load(path, 0)
		Expect(err).To(MatchError(loader.ErrNot32Bit))
	})

	It("falls back to raw loading when the file carries no ELF magic", func() {
		path := filepath.Join(GinkgoT().TempDir(), "not-elf.bin")
		Expect(os.WriteFile(path, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 0o644)).To(Succeed())

		prog, err := loader.Load(path, loader.DefaultLoadAddr)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.EntryPoint).To(Equal(uint32(loader.DefaultLoadAddr)))
		Expect(prog.Segments).To(HaveLen(1))
		Expect(prog.Segments[0].Data).To(Equal([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	})
})
