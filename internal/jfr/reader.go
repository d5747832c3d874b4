// Package jfr implements a streaming reader for the JFR chunked binary
// container format: chunk headers, the self-describing metadata tree,
// delta-linked constant pool checkpoints, and the small set of event
// types this converter cares about (execution samples, allocation
// samples, contended locks, and old-object samples).
package jfr

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ErrTruncated marks a trailing chunk that ended before its full header
// or its declared body could be read. This is tolerated: JFR recordings written by a JVM
// that crashed or was killed commonly end mid-chunk, and the reader
// should surface whatever complete chunks came before it rather than
// fail the whole file.
var ErrTruncated = errors.New("truncated trailing chunk")

// minChunkHeaderBytes is the smallest a well-formed chunk can be: magic
// + version + fixed header, with a zero-length body.
const minChunkHeaderBytes = preambleSize + headerSize

// Reader is the public streaming JFR reader. Callers drive it with
// ReadEvent in a loop; StopAtNewChunk controls whether a chunk boundary
// is surfaced to the caller (for per-chunk aggregation, matching how
// the original converter resolves symbols against a chunk's own
// constant pools) or crossed transparently.
type Reader struct {
	raw            []byte
	pos            int
	cur            *chunk
	chunkDone      bool
	firstChunk     bool
	err            error
	StopAtNewChunk bool

	StartTicks      int64
	StartNanos      int64
	ChunkStartTicks int64
	ChunkStartNanos int64
	TicksPerSec     int64
	EndNanos        int64
}

// NewReader wraps an in-memory JFR recording. data is not copied.
func NewReader(data []byte) *Reader {
	return &Reader{raw: data, firstChunk: true}
}

// HasMoreChunks reports whether a chunk is still current or unconsumed
// bytes remain in the file, and no fatal or truncation error has been
// recorded.
func (r *Reader) HasMoreChunks() bool {
	return r.err == nil && (r.cur != nil || r.pos < len(r.raw))
}

// Err returns the first fatal parse error encountered, if any.
func (r *Reader) Err() error {
	if errors.Is(r.err, ErrTruncated) {
		return nil
	}
	return r.err
}

// ReadEvent returns the next event of the requested kind in file order.
// It returns (nil, nil) at a chunk boundary when StopAtNewChunk is set,
// or once the file is exhausted. The chunk that just finished stays
// current (its metadata/dictionaries stay resolvable through Symbol,
// Class, Method, StackTrace, ...) until the next ReadEvent call, so a
// caller can drain per-chunk aggregation and resolve names against it
// after seeing the boundary, before moving on.
func (r *Reader) ReadEvent(kind EventKind) (*Event, error) {
	for {
		if r.chunkDone {
			r.chunkDone = false
			r.cur = nil
		}
		if r.cur == nil {
			if !r.advanceChunk() {
				return nil, r.Err()
			}
		}
		ev, err := r.cur.readEvent(kind)
		if err != nil {
			r.err = fmt.Errorf("chunk at offset %d: %w", r.pos, err)
			return nil, r.err
		}
		if ev != nil {
			return ev, nil
		}
		if r.StopAtNewChunk {
			r.chunkDone = true
			return nil, nil
		}
		r.cur = nil
	}
}

func (r *Reader) advanceChunk() bool {
	if r.err != nil || r.pos >= len(r.raw) {
		return false
	}
	remaining := r.raw[r.pos:]
	if len(remaining) < minChunkHeaderBytes {
		r.err = ErrTruncated
		return false
	}
	c, consumed, err := parseChunk(remaining)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			r.err = ErrTruncated
			return false
		}
		r.err = fmt.Errorf("malformed chunk at offset %d: %w", r.pos, err)
		return false
	}
	r.pos += consumed
	r.cur = c

	if r.firstChunk {
		r.StartTicks = c.header.StartTicks
		r.StartNanos = c.header.StartNanos
		r.firstChunk = false
	}
	r.ChunkStartTicks = c.header.StartTicks
	r.ChunkStartNanos = c.header.StartNanos
	r.TicksPerSec = c.header.TicksPerSec
	r.EndNanos = c.header.StartNanos + c.header.DurationNanos
	return true
}

// GetEnumValue resolves an enum ordinal against the current chunk's
// metadata tree.
func (r *Reader) GetEnumValue(typeName string, ordinal int32) (string, bool) {
	if r.cur == nil {
		return "", false
	}
	return r.cur.md.EnumValue(typeName, ordinal)
}

// GetEnumKey resolves an enum label back to its ordinal against the
// current chunk's metadata tree. --state filtering goes through
// MatchThreadState instead, which also accepts the bare name without
// its STATE_ prefix.
func (r *Reader) GetEnumKey(typeName, label string) (int32, bool) {
	if r.cur == nil {
		return 0, false
	}
	return r.cur.md.EnumKey(typeName, label)
}

// HasNativeFrameType reports whether the current chunk's FrameType enum
// carries a Kernel member (see enum.go).
func (r *Reader) HasNativeFrameType() bool {
	return r.cur != nil && r.cur.md.HasNativeFrameType()
}

// MatchThreadState resolves a --state argument against the current
// chunk's ThreadState enum.
func (r *Reader) MatchThreadState(name string) (int32, bool) {
	if r.cur == nil {
		return 0, false
	}
	return r.cur.md.MatchThreadState(name)
}

// Symbol resolves a symbol-table entry from the current chunk.
func (r *Reader) Symbol(id int64) ([]byte, bool) {
	if r.cur == nil {
		return nil, false
	}
	b, ok := r.cur.dict.symbols[id]
	return b, ok
}

// Class resolves a class reference from the current chunk.
func (r *Reader) Class(id int64) (ClassRef, bool) {
	if r.cur == nil {
		return ClassRef{}, false
	}
	return r.cur.dict.classes.Get(id)
}

// Method resolves a method reference from the current chunk.
func (r *Reader) Method(id int64) (MethodRef, bool) {
	if r.cur == nil {
		return MethodRef{}, false
	}
	return r.cur.dict.methods.Get(id)
}

// StackTrace resolves a stack trace from the current chunk.
func (r *Reader) StackTrace(id int64) (StackTrace, bool) {
	if r.cur == nil {
		return StackTrace{}, false
	}
	return r.cur.dict.stackTraces.Get(id)
}

// FileTimeRange walks every chunk header in the file (skipping each
// chunk's body by its declared size rather than parsing it) to find
// the overall recording's start and end time. --to's "offset from end"
// form needs the true end of the file, which isn't known until every
// chunk has been seen at least once; this scan is cheap since it never
// touches metadata or constant pools.
func (r *Reader) FileTimeRange() (startNanos, endNanos int64, err error) {
	pos := 0
	first := true
	for pos < len(r.raw) {
		remaining := r.raw[pos:]
		if len(remaining) < minChunkHeaderBytes {
			break
		}
		hr := newByteReader(remaining)
		hdr, err := parseChunkHeader(hr)
		if err != nil {
			break
		}
		if first {
			startNanos = hdr.StartNanos
			first = false
		}
		endNanos = hdr.StartNanos + hdr.DurationNanos
		pos += preambleSize + headerSize + int(hdr.ChunkSize)
	}
	return startNanos, endNanos, nil
}

// Thread resolves a thread reference from the current chunk.
func (r *Reader) Thread(id int64) (ThreadRef, bool) {
	if r.cur == nil {
		return ThreadRef{}, false
	}
	return r.cur.dict.threads.Get(id)
}
