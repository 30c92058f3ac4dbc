package emu

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Routine is a syscall trap routine index, derived from the trap PC as
// (pc - TrapBase) >> 2, per spec.md §4.5/§4.6.
type Routine uint32

// Routine indices, in the exact order original_source/sim/syscalls.cpp's
// routine_t enum dispatches them.
const (
	RoutineExit Routine = iota
	RoutinePutchar
	RoutineGetchar
	RoutineClose
	RoutineFstat
	RoutineIsatty
	RoutineLink
	RoutineLseek
	RoutineMkdir
	RoutineOpen
	RoutineRead
	RoutineStat
	RoutineUnlink
	RoutineWrite
	RoutineGettimeMicros
	routineLast
)

// TrapBase is the first address of the reserved syscall-trap PC window
// (spec.md §6's memory map: `[0xFFFF0000, 0xFFFF0000 + 4*N_syscalls)`).
const TrapBase uint32 = 0xFFFF0000

// TrapSpan is the byte span of the trap window, one word per routine.
const TrapSpan uint32 = uint32(routineLast) * 4

// statBufSize is the size in bytes of the newlib-compatible stat buffer
// the FSTAT/STAT routines populate (original_source/sim/syscalls.cpp's
// syscalls_t::stat_to_ram layout).
const statBufSize = 72

// SyscallTrap implements the host-backed routines a guest program invokes
// by branching into the trap window, per spec.md §4.6. It owns the file
// descriptor table and the exit/terminate latch the interpreter polls
// after every dispatch.
type SyscallTrap struct {
	memory   *Memory
	fds      *FDTable
	stdin    io.Reader
	stdinBuf *bufio.Reader
	stdout   io.Writer
	stderr   io.Writer

	terminate bool
	exitCode  uint32
}

// NewSyscallTrap constructs a trap wired to the given memory and host
// streams. Passing os.Stdin/os.Stdout/os.Stderr gives the guest the same
// access a native process would have.
func NewSyscallTrap(memory *Memory, stdin io.Reader, stdout, stderr io.Writer) *SyscallTrap {
	return &SyscallTrap{
		memory:   memory,
		fds:      NewFDTable(),
		stdin:    stdin,
		stdinBuf: bufio.NewReader(stdin),
		stdout:   stdout,
		stderr:   stderr,
	}
}

// Terminated reports whether an EXIT routine has fired.
func (s *SyscallTrap) Terminated() bool { return s.terminate }

// ExitCode returns the guest's requested exit status, valid only once
// Terminated is true.
func (s *SyscallTrap) ExitCode() uint32 { return s.exitCode }

// RequestTermination lets an external caller (e.g. a signal handler)
// cooperatively stop the interpreter, per spec.md §4.5's "external
// terminate request".
func (s *SyscallTrap) RequestTermination() { s.terminate = true }

// RoutineForPC converts a trap-window PC to a routine index, or reports
// ok=false if the PC falls outside the window or names an undefined
// routine (spec.md §7's SYSCALL_UNKNOWN: "ignored, not an error").
func RoutineForPC(pc uint32) (Routine, bool) {
	if pc < TrapBase || pc >= TrapBase+TrapSpan {
		return 0, false
	}
	idx := (pc - TrapBase) >> 2
	if idx >= uint32(routineLast) {
		return 0, false
	}
	return Routine(idx), true
}

// Call dispatches one routine against the scalar register file, following
// the R1/R2/R3 argument and R1(/R2) result convention spec.md §4.6
// describes. Argument and return register writes happen in place on regs.
func (s *SyscallTrap) Call(routine Routine, regs *RegFile) {
	switch routine {
	case RoutineExit:
		s.terminate = true
		s.exitCode = regs.Read(1)

	case RoutinePutchar:
		c := byte(regs.Read(1))
		if _, err := s.stdout.Write([]byte{c}); err != nil {
			regs.Write(1, errnoOf(err))
			return
		}
		regs.Write(1, regs.Read(1))

	case RoutineGetchar:
		s.doGetchar(regs)

	case RoutineClose:
		fd := uint64(regs.Read(1))
		err := s.fds.Close(fd)
		regs.Write(1, statusOf(err))

	case RoutineFstat:
		s.doStat(regs, func() (os.FileInfo, error) {
			fd := uint64(regs.Read(1))
			entry, ok := s.fds.Get(fd)
			if !ok {
				return nil, os.ErrInvalid
			}
			if entry.HostFile != nil {
				return entry.HostFile.Stat()
			}
			return s.fds.Stat(fd)
		})

	case RoutineIsatty:
		fd := uint64(regs.Read(1))
		entry, ok := s.fds.Get(fd)
		isTTY := ok && fd <= 2 && entry.HostFile == nil
		if isTTY {
			regs.Write(1, 1)
		} else {
			regs.Write(1, 0)
		}

	case RoutineLink:
		oldPath, err := s.memory.ReadCString(regs.Read(1))
		if err != nil {
			regs.Write(1, errnoOf(err))
			return
		}
		newPath, err := s.memory.ReadCString(regs.Read(2))
		if err != nil {
			regs.Write(1, errnoOf(err))
			return
		}
		regs.Write(1, statusOf(os.Link(oldPath, newPath)))

	case RoutineLseek:
		fd := uint64(regs.Read(1))
		offset := int64(int32(regs.Read(2)))
		whence := int(int32(regs.Read(3)))
		n, err := s.fds.Seek(fd, offset, whence)
		if err != nil {
			regs.Write(1, errnoOf(err))
			return
		}
		regs.Write(1, uint32(n))

	case RoutineMkdir:
		path, err := s.memory.ReadCString(regs.Read(1))
		if err != nil {
			regs.Write(1, errnoOf(err))
			return
		}
		mode := os.FileMode(regs.Read(2) & 0o777)
		regs.Write(1, statusOf(os.Mkdir(path, mode)))

	case RoutineOpen:
		s.doOpen(regs)

	case RoutineRead:
		s.doRead(regs)

	case RoutineStat:
		s.doStat(regs, func() (os.FileInfo, error) {
			path, err := s.memory.ReadCString(regs.Read(1))
			if err != nil {
				return nil, err
			}
			return os.Stat(path)
		})

	case RoutineUnlink:
		path, err := s.memory.ReadCString(regs.Read(1))
		if err != nil {
			regs.Write(1, errnoOf(err))
			return
		}
		regs.Write(1, statusOf(os.Remove(path)))

	case RoutineWrite:
		s.doWrite(regs)

	case RoutineGettimeMicros:
		micros := uint64(time.Now().UnixMicro())
		regs.Write(1, uint32(micros))
		regs.Write(2, uint32(micros>>32))

	default:
		log.Debug().Uint32("routine", uint32(routine)).Msg("syscall trap: unknown routine ignored")
	}
}

func (s *SyscallTrap) doGetchar(regs *RegFile) {
	b, err := s.stdinBuf.ReadByte()
	if err != nil {
		regs.Write(1, 0xFFFFFFFF) // EOF, matching C's getchar() == -1
		return
	}
	regs.Write(1, uint32(b))
}

func (s *SyscallTrap) doOpen(regs *RegFile) {
	path, err := s.memory.ReadCString(regs.Read(1))
	if err != nil {
		regs.Write(1, errnoOf(err))
		return
	}
	flags := openFlagsToHost(regs.Read(2))
	mode := os.FileMode(regs.Read(3) & 0o777)
	fd, err := s.fds.Open(path, flags, mode)
	if err != nil {
		regs.Write(1, 0xFFFFFFFF)
		return
	}
	regs.Write(1, uint32(fd))
}

// openFlagsToHost translates the guest's newlib-style open(2) flag bits
// to Go's os.O_* constants, following
// original_source/sim/syscalls.cpp's open_flags_to_host: bits[1:0] select
// the access mode, bit 3 is O_APPEND, bit 9 is O_CREAT, bit 10 is O_TRUNC.
func openFlagsToHost(flags uint32) int {
	var result int
	switch flags & 0x3 {
	case 1:
		result = os.O_WRONLY
	case 2:
		result = os.O_RDWR
	default:
		result = os.O_RDONLY
	}
	if flags&0x008 != 0 {
		result |= os.O_APPEND
	}
	if flags&0x200 != 0 {
		result |= os.O_CREATE
	}
	if flags&0x400 != 0 {
		result |= os.O_TRUNC
	}
	return result
}

func (s *SyscallTrap) doRead(regs *RegFile) {
	fd := uint64(regs.Read(1))
	addr := regs.Read(2)
	n := regs.Read(3)
	if !s.memory.ValidRange(addr, n) {
		regs.Write(1, 0xFFFFFFFF)
		return
	}
	buf := make([]byte, n)
	var read int
	var err error
	switch fd {
	case 0:
		read, err = s.stdin.Read(buf)
	default:
		read, err = s.fds.Read(fd, buf)
	}
	if err != nil && read == 0 {
		regs.Write(1, 0xFFFFFFFF)
		return
	}
	if werr := s.memory.WriteBytes(addr, buf[:read]); werr != nil {
		regs.Write(1, errnoOf(werr))
		return
	}
	regs.Write(1, uint32(read))
}

func (s *SyscallTrap) doWrite(regs *RegFile) {
	fd := uint64(regs.Read(1))
	addr := regs.Read(2)
	n := regs.Read(3)
	if !s.memory.ValidRange(addr, n) {
		regs.Write(1, 0xFFFFFFFF)
		return
	}
	buf, err := s.memory.ReadBytes(addr, n)
	if err != nil {
		regs.Write(1, errnoOf(err))
		return
	}
	var written int
	switch fd {
	case 1:
		written, err = s.stdout.Write(buf)
	case 2:
		written, err = s.stderr.Write(buf)
	default:
		written, err = s.fds.Write(fd, buf)
	}
	if err != nil {
		regs.Write(1, 0xFFFFFFFF)
		return
	}
	regs.Write(1, uint32(written))
}

func (s *SyscallTrap) doStat(regs *RegFile, stat func() (os.FileInfo, error)) {
	info, err := stat()
	if err != nil {
		regs.Write(1, 0xFFFFFFFF)
		return
	}
	s.writeStat(regs.Read(2), info)
	regs.Write(1, 0)
}

// writeStat populates the 72-byte newlib struct stat layout at addr,
// matching original_source/sim/syscalls.cpp's stat_to_ram field offsets.
// Device/inode/uid/gid/rdev fields have no faithful host equivalent under
// Go's portable os.FileInfo, so they are zeroed like the reference's
// non-POSIX (_WIN32) branch does for the fields it cannot populate either;
// st_nlink is always reported as 1.
func (s *SyscallTrap) writeStat(addr uint32, info os.FileInfo) {
	if !s.memory.ValidRange(addr, statBufSize) {
		return
	}
	_ = s.memory.Store16(addr+0, 0)  // st_dev
	_ = s.memory.Store16(addr+2, 0)  // st_ino
	mode := uint32(info.Mode().Perm())
	if info.IsDir() {
		mode |= 0o040000
	} else {
		mode |= 0o100000
	}
	_ = s.memory.Store32(addr+4, mode)
	_ = s.memory.Store16(addr+8, 1) // st_nlink
	_ = s.memory.Store16(addr+10, 0)
	_ = s.memory.Store16(addr+12, 0)
	_ = s.memory.Store16(addr+14, 0)
	_ = s.memory.Store32(addr+16, uint32(info.Size()))
	mtime := info.ModTime()
	_ = s.memory.Store32(addr+20, uint32(mtime.Unix()))
	_ = s.memory.Store32(addr+24, uint32(mtime.Unix()>>32))
	_ = s.memory.Store32(addr+28, uint32(mtime.Nanosecond()))
	_ = s.memory.Store32(addr+32, uint32(mtime.Unix()))
	_ = s.memory.Store32(addr+36, uint32(mtime.Unix()>>32))
	_ = s.memory.Store32(addr+40, uint32(mtime.Nanosecond()))
	_ = s.memory.Store32(addr+44, uint32(mtime.Unix()))
	_ = s.memory.Store32(addr+48, uint32(mtime.Unix()>>32))
	_ = s.memory.Store32(addr+52, uint32(mtime.Nanosecond()))
	_ = s.memory.Store32(addr+56, 512) // st_blksize
	_ = s.memory.Store32(addr+60, uint32((info.Size()+511)/512))
	_ = s.memory.Store32(addr+64, 0)
	_ = s.memory.Store32(addr+68, 0)
}

func statusOf(err error) uint32 {
	if err == nil {
		return 0
	}
	return 0xFFFFFFFF
}

func errnoOf(err error) uint32 {
	if err == nil {
		return 0
	}
	return 0xFFFFFFFF
}
