package emu

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrBadFD is returned by every FDTable operation given a guest file
// descriptor that is unknown or already closed, the newlib EBADF case the
// OPEN/READ/WRITE/CLOSE/LSEEK/FSTAT routines in emu/syscall.go all collapse
// to a single -1 result via errnoOf, matching ErrBounds/ErrAlignment's
// sentinel-error convention in emu/memory.go.
var ErrBadFD = errors.New("EBADF")

// hostFD is one entry of the guest's open-file table: either a real host
// *os.File backing a guest OPEN call, or one of the three pre-opened
// stdio streams the syscall trap wires directly to its own io.Reader/Writer
// rather than a host file (HostFile stays nil for those).
type hostFD struct {
	HostFile *os.File
	Path     string
	Flags    int
	IsOpen   bool
}

// FDTable is the guest's open-file table backing the OPEN/READ/WRITE/CLOSE/
// LSEEK/FSTAT/STAT/ISATTY routines: stdin/stdout/stderr are pre-populated at
// fds 0/1/2, and OPEN allocates upward from 3, per spec.md §4.6's syscall
// register convention.
type FDTable struct {
	fds    map[uint64]*hostFD
	nextFD uint64
	mu     sync.Mutex
}

// NewFDTable builds a table with the three standard streams already open.
func NewFDTable() *FDTable {
	t := &FDTable{
		fds:    make(map[uint64]*hostFD),
		nextFD: 3,
	}

	t.fds[0] = &hostFD{Path: "stdin", IsOpen: true}
	t.fds[1] = &hostFD{Path: "stdout", IsOpen: true}
	t.fds[2] = &hostFD{Path: "stderr", IsOpen: true}

	return t
}

// Open opens a host file and allocates the next free guest fd for it.
func (t *FDTable) Open(path string, flags int, mode os.FileMode) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hostFile, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}

	fd := t.nextFD
	t.nextFD++

	t.fds[fd] = &hostFD{
		HostFile: hostFile,
		Path:     path,
		Flags:    flags,
		IsOpen:   true,
	}

	return fd, nil
}

// Close closes fd. Closing one of the stdio fds only marks it closed on the
// guest side; the underlying host stream (owned by the SyscallTrap that
// constructed this table) is never touched.
func (t *FDTable) Close(fd uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		return ErrBadFD
	}

	if fd <= 2 {
		entry.IsOpen = false
		return nil
	}

	if entry.HostFile != nil {
		if err := entry.HostFile.Close(); err != nil {
			return errors.Wrapf(err, "close fd %d", fd)
		}
	}

	entry.HostFile = nil
	entry.IsOpen = false

	return nil
}

// Get returns the entry for fd, for callers (FSTAT/ISATTY) that need to
// distinguish a stdio stream from a host-backed file.
func (t *FDTable) Get(fd uint64) (*hostFD, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		return nil, false
	}

	return entry, true
}

// IsOpen reports whether fd is currently open.
func (t *FDTable) IsOpen(fd uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	return exists && entry.IsOpen
}

// Read reads from a host-backed fd. Fd 0 is rejected here since
// emu/syscall.go's doRead reads stdin through the SyscallTrap's own
// io.Reader instead of routing it through this table.
func (t *FDTable) Read(fd uint64, buf []byte) (int, error) {
	hostFile, err := t.hostFileFor(fd, 0)
	if err != nil {
		return 0, err
	}
	return hostFile.Read(buf)
}

// Write writes to a host-backed fd. Fds 1/2 are rejected here since
// emu/syscall.go's doWrite routes stdout/stderr through the SyscallTrap's
// own io.Writer pair instead of this table.
func (t *FDTable) Write(fd uint64, buf []byte) (int, error) {
	hostFile, err := t.hostFileFor(fd, 2)
	if err != nil {
		return 0, err
	}
	return hostFile.Write(buf)
}

// Seek repositions a host-backed fd.
func (t *FDTable) Seek(fd uint64, offset int64, whence int) (int64, error) {
	hostFile, err := t.hostFileFor(fd, 2)
	if err != nil {
		return 0, err
	}
	return hostFile.Seek(offset, whence)
}

// hostFileFor resolves fd to its *os.File, rejecting fds without a host
// backing: unopened/closed fds (ErrBadFD) and any fd at or below
// stdioCeiling, which the caller handles through the SyscallTrap's own
// streams instead.
func (t *FDTable) hostFileFor(fd uint64, stdioCeiling uint64) (*os.File, error) {
	t.mu.Lock()
	entry, exists := t.fds[fd]
	t.mu.Unlock()

	if !exists || !entry.IsOpen {
		return nil, ErrBadFD
	}
	if fd <= stdioCeiling || entry.HostFile == nil {
		return nil, os.ErrInvalid
	}
	return entry.HostFile, nil
}

// Stat returns file information for fd: a synthetic char-device stat for
// the stdio fds (they have no host file to stat), or the real host stat
// otherwise.
func (t *FDTable) Stat(fd uint64) (os.FileInfo, error) {
	t.mu.Lock()
	entry, exists := t.fds[fd]
	t.mu.Unlock()

	if !exists || !entry.IsOpen {
		return nil, ErrBadFD
	}

	if fd <= 2 {
		return &stdioFileInfo{name: entry.Path}, nil
	}

	if entry.HostFile == nil {
		return nil, os.ErrInvalid
	}

	return entry.HostFile.Stat()
}

// stdioFileInfo is the synthetic os.FileInfo Stat/Fstat report for
// stdin/stdout/stderr, since they have no backing host file to stat.
type stdioFileInfo struct {
	name string
}

func (f *stdioFileInfo) Name() string       { return f.name }
func (f *stdioFileInfo) Size() int64        { return 0 }
func (f *stdioFileInfo) Mode() os.FileMode  { return os.ModeCharDevice | 0o666 }
func (f *stdioFileInfo) ModTime() time.Time { return time.Time{} }
func (f *stdioFileInfo) IsDir() bool        { return false }
func (f *stdioFileInfo) Sys() interface{}   { return nil }
