// Package main provides the command-line front-end for the MR32 simulator:
// it parses flags, loads a guest binary, wires an Emulator, and runs it to
// completion (spec.md §6's "CLI surface").
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mr32/mr32sim/emu"
	"github.com/mr32/mr32sim/insts"
	"github.com/mr32/mr32sim/loader"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("mr32sim failed")
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mr32sim PROGRAM [program-arguments...]",
		Short:        "Run a program compiled for the MR32 instruction set",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.Bool("verbose", false, "enable verbose logging")
	flags.Bool("gfx", false, "enable the windowed graphics frontend")
	flags.String("gfx-addr", "0xC8000000", "framebuffer base address")
	flags.String("gfx-palette", "0xC8002000", "palette base address")
	flags.Int("gfx-width", 640, "framebuffer width in pixels")
	flags.Int("gfx-height", 480, "framebuffer height in pixels")
	flags.Int("gfx-depth", 8, "framebuffer bits per pixel")
	flags.Bool("fullscreen", false, "run the graphics window fullscreen")
	flags.Bool("no-scale", false, "disable integer scaling of the graphics window")
	flags.Bool("no-auto-close", false, "keep the graphics window open after the guest exits")
	flags.String("trace", "", "write a debug trace to FILE")
	flags.String("ram-size", "0xFFFF1000", "RAM size in bytes (must cover the MMIO/trap/argv bands to use them)")
	flags.String("addr", "0x00000200", "program load address (raw binaries only)")
	flags.Int64("cycles", -1, "stop after N cycles (-1 = unlimited)")
	flags.String("perf-syms", "", "load a perf-symbol table from FILE")

	v := viper.New()
	_ = v.BindPFlags(flags)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runSim(v, args)
	}

	return cmd
}

func runSim(v *viper.Viper, args []string) error {
	if v.GetBool("verbose") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ramSize, err := parseUintArg(v.GetString("ram-size"))
	if err != nil {
		return fmt.Errorf("--ram-size: %w", err)
	}
	loadAddr, err := parseUintArg(v.GetString("addr"))
	if err != nil {
		return fmt.Errorf("--addr: %w", err)
	}

	programPath := args[0]

	prog, err := loader.Load(programPath, loadAddr)
	if err != nil {
		return fmt.Errorf("loading %s: %w", programPath, err)
	}

	memory := emu.NewMemory(ramSize)
	for _, seg := range prog.Segments {
		if err := memory.WriteBytes(seg.VirtAddr, seg.Data); err != nil {
			return fmt.Errorf("loading segment at 0x%08x: %w", seg.VirtAddr, err)
		}
	}

	if err := writeArgv(memory, args[1:]); err != nil {
		return fmt.Errorf("writing argument vector: %w", err)
	}

	syscalls := emu.NewSyscallTrap(memory, os.Stdin, os.Stdout, os.Stderr)

	opts := []emu.EmulatorOption{
		emu.WithEntryPoint(prog.EntryPoint),
		emu.WithStackPointer(mmioDefaultStackPointer),
	}

	if n := v.GetInt64("cycles"); n >= 0 {
		opts = append(opts, emu.WithMaxCycles(n))
	} else {
		opts = append(opts, emu.WithMaxCycles(-1))
	}

	opts = append(opts, emu.WithMMIO(emu.MMIOBase))

	if tracePath := v.GetString("trace"); tracePath != "" {
		f, err := os.Create(tracePath)
		if err != nil {
			return fmt.Errorf("opening trace file: %w", err)
		}
		sink := emu.NewTraceSink(emu.NewBufferedFileSink(f))
		opts = append(opts, emu.WithTrace(sink))
	}

	var profiler *emu.PerfProfiler
	if symPath := v.GetString("perf-syms"); symPath != "" {
		f, err := os.Open(symPath)
		if err != nil {
			return fmt.Errorf("opening perf-symbol file: %w", err)
		}
		profiler, err = emu.LoadPerfSymbols(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("parsing perf-symbol file: %w", err)
		}
		opts = append(opts, emu.WithPerfProfiler(profiler))
	}

	if v.GetBool("gfx") {
		log.Warn().Msg("--gfx requested but this build has no windowed frontend wired in; continuing headless")
	}

	e := emu.NewEmulator(memory, syscalls, insts.NumVectorElements, opts...)

	if err := e.Run(); err != nil {
		return err
	}

	if v.GetBool("verbose") {
		log.Info().
			Uint64("cycles", e.Cycles()).
			Uint64("instructions", e.Fetched()).
			Uint32("exit_code", e.ExitCode()).
			Msg("run complete")
	}

	if profiler != nil {
		for _, sym := range profiler.Report() {
			fmt.Fprintf(os.Stderr, "%-32s %d\n", sym.Name, sym.Ticks)
		}
	}

	os.Exit(int(int32(e.ExitCode())))
	return nil
}

// mmioDefaultStackPointer places the stack just below the syscall trap
// window's argument-vector band (spec.md §6's memory map).
const mmioDefaultStackPointer = 0xFFF00000

// writeArgv serializes argc/argv/strings into the reserved argument-vector
// band (spec.md §6: `[0xFFF00000, 0xFFFF0000)`); the guest reads them
// directly from this fixed address rather than via an entry register
// (original_source/sim/mr32sim.cpp's SIM_ARGS_START convention).
func writeArgv(memory *emu.Memory, progArgs []string) error {
	const base uint32 = 0xFFF00000

	argc := uint32(len(progArgs))
	ptrsBase := base + 4
	stringsBase := ptrsBase + 4*argc

	offset := stringsBase
	ptrs := make([]uint32, argc)
	for i, a := range progArgs {
		ptrs[i] = offset
		data := append([]byte(a), 0)
		if err := memory.WriteBytes(offset, data); err != nil {
			return err
		}
		offset += uint32(len(data))
	}

	if err := memory.Store32(base, argc); err != nil {
		return err
	}
	for i, p := range ptrs {
		if err := memory.Store32(ptrsBase+uint32(i)*4, p); err != nil {
			return err
		}
	}

	return nil
}

// parseUintArg parses a numeric CLI argument using C-style base prefixes
// (0x.../0.../plain decimal), per spec.md §6.
func parseUintArg(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
