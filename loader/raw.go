package loader

import (
	"os"

	"github.com/pkg/errors"
)

// LoadRaw loads path as a flat binary image with no header: the whole file
// becomes one R/W/X segment placed at addr, and addr itself is the entry
// point. This is the fallback path for images produced by a linker script
// that emits a raw ROM image rather than an ELF executable.
func LoadRaw(path string, addr uint32) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading raw binary %s", path)
	}

	return &Program{
		EntryPoint: addr,
		Segments: []Segment{
			{
				VirtAddr: addr,
				Data:     data,
				MemSize:  uint32(len(data)),
				Flags:    SegmentFlagExecute | SegmentFlagWrite | SegmentFlagRead,
			},
		},
	}, nil
}
