package emu

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/gzip"
)

// TraceRecord is one lane's debug-trace entry: a 20-byte little-endian
// record of flags | pc | src_a | src_b | src_c, per spec.md §4.7/§6.
type TraceRecord struct {
	Valid     bool
	SrcAValid bool
	SrcBValid bool
	SrcCValid bool
	PC        uint32
	SrcA      uint32
	SrcB      uint32
	SrcC      uint32
}

const (
	traceFlushInterval = 128
	traceEntrySize      = 5 * 4 // flags, pc, src_a, src_b, src_c
)

// TraceSink buffers trace records and flushes them to an underlying writer
// every traceFlushInterval records and at Close, matching
// original_source/sim/cpu.hpp's m_debug_trace_buf/TRACE_FLUSH_INTERVAL.
type TraceSink struct {
	w       io.WriteCloser
	buf     []byte
	entries int
}

// TraceOption configures a TraceSink.
type TraceOption func(*traceConfig)

type traceConfig struct {
	compress bool
}

// WithCompression wraps the trace sink's writer with gzip, using
// klauspost/compress for higher throughput than stdlib compress/gzip on
// long-running traces (see SPEC_FULL.md's DOMAIN STACK).
func WithCompression(enabled bool) TraceOption {
	return func(c *traceConfig) { c.compress = enabled }
}

// NewTraceSink wraps w in a buffered trace sink.
func NewTraceSink(w io.WriteCloser, opts ...TraceOption) *TraceSink {
	cfg := traceConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	out := w
	if cfg.compress {
		gz := gzip.NewWriter(w)
		out = &gzipWriteCloser{Writer: gz, inner: w}
	}
	return &TraceSink{
		w:   out,
		buf: make([]byte, 0, traceFlushInterval*traceEntrySize),
	}
}

type gzipWriteCloser struct {
	*gzip.Writer
	inner io.WriteCloser
}

func (g *gzipWriteCloser) Close() error {
	if err := g.Writer.Close(); err != nil {
		return err
	}
	return g.inner.Close()
}

// Append appends one trace record, flushing if the buffer reaches
// traceFlushInterval entries. Invalid records (Valid == false) are dropped
// before buffering, matching the reference's "only append if valid" guard.
func (t *TraceSink) Append(r TraceRecord) error {
	if !r.Valid {
		return nil
	}
	var flags uint32
	flags |= 1
	if r.SrcAValid {
		flags |= 1 << 1
	}
	if r.SrcBValid {
		flags |= 1 << 2
	}
	if r.SrcCValid {
		flags |= 1 << 3
	}

	var entry [traceEntrySize]byte
	binary.LittleEndian.PutUint32(entry[0:4], flags)
	binary.LittleEndian.PutUint32(entry[4:8], r.PC)
	binary.LittleEndian.PutUint32(entry[8:12], r.SrcA)
	binary.LittleEndian.PutUint32(entry[12:16], r.SrcB)
	binary.LittleEndian.PutUint32(entry[16:20], r.SrcC)

	t.buf = append(t.buf, entry[:]...)
	t.entries++
	if t.entries >= traceFlushInterval {
		return t.Flush()
	}
	return nil
}

// Flush writes any buffered records to the underlying writer.
func (t *TraceSink) Flush() error {
	if len(t.buf) == 0 {
		return nil
	}
	if _, err := t.w.Write(t.buf); err != nil {
		return err
	}
	t.buf = t.buf[:0]
	t.entries = 0
	return nil
}

// Close flushes any remaining records and closes the underlying writer.
func (t *TraceSink) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	return t.w.Close()
}

// bufferedFileCloser adapts a *bufio.Writer over a file into an
// io.WriteCloser that flushes the bufio buffer on Close.
type bufferedFileCloser struct {
	*bufio.Writer
	file io.Closer
}

func (b *bufferedFileCloser) Close() error {
	if err := b.Writer.Flush(); err != nil {
		return err
	}
	return b.file.Close()
}

// NewBufferedFileSink wraps a file in a buffered writer suitable for
// TraceSink construction.
func NewBufferedFileSink(f interface {
	io.Writer
	io.Closer
}) io.WriteCloser {
	return &bufferedFileCloser{Writer: bufio.NewWriter(f), file: f}
}
