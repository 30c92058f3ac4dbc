package emu

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PerfSymbol is one entry of the perf-symbol input: a starting address and
// a function name, per spec.md §6 ("Perf-symbol input").
type PerfSymbol struct {
	Addr  uint32
	Name  string
	Ticks uint64
}

// PerfProfiler accumulates per-symbol cycle counts given a stream of
// (PC, cycle-tick) notifications, per spec.md §1's "Performance-symbol
// profiler" external collaborator and §6's text symbol-table format.
type PerfProfiler struct {
	symbols []PerfSymbol // kept sorted by Addr
}

// LoadPerfSymbols parses one symbol per line: an 8-hex-digit address, a
// space, then the function name.
func LoadPerfSymbols(r io.Reader) (*PerfProfiler, error) {
	p := &PerfProfiler{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("malformed perf-symbol line: %q", line)
		}
		addr, err := strconv.ParseUint(parts[0], 16, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed perf-symbol address: %q", parts[0])
		}
		p.symbols = append(p.symbols, PerfSymbol{Addr: uint32(addr), Name: strings.TrimSpace(parts[1])})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	sort.Slice(p.symbols, func(i, j int) bool { return p.symbols[i].Addr < p.symbols[j].Addr })
	return p, nil
}

// Tick attributes one cycle-tick at the given PC to whichever symbol's
// address range contains it (the symbol with the greatest Addr <= pc).
func (p *PerfProfiler) Tick(pc uint32) {
	if len(p.symbols) == 0 {
		return
	}
	i := sort.Search(len(p.symbols), func(i int) bool { return p.symbols[i].Addr > pc })
	if i == 0 {
		return // pc precedes every known symbol
	}
	p.symbols[i-1].Ticks++
}

// Report returns the accumulated per-symbol cycle counts, sorted by
// descending tick count.
func (p *PerfProfiler) Report() []PerfSymbol {
	out := make([]PerfSymbol, len(p.symbols))
	copy(out, p.symbols)
	sort.Slice(out, func(i, j int) bool { return out[i].Ticks > out[j].Ticks })
	return out
}
