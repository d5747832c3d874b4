package jfr

import (
	"fmt"
	"io"
)

var chunkMagic = [4]byte{'F', 'L', 'R', 0}

// headerSize is the fixed-width portion of the chunk header following
// magic+version: seven int64 fields plus one int32, mirroring
// jfr-parser's Header (60 bytes).
const headerSize = 7*8 + 4
const preambleSize = len(chunkMagic) + 4 // magic + major/minor version

type chunkHeader struct {
	ChunkSize          int64
	ConstantPoolOffset int64
	MetadataOffset     int64
	StartNanos         int64
	DurationNanos      int64
	StartTicks         int64
	TicksPerSec        int64
	Features           int32
}

func parseChunkHeader(r *byteReader) (*chunkHeader, error) {
	magic, err := r.readN(len(chunkMagic))
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	for i, b := range chunkMagic {
		if magic[i] != b {
			return nil, fmt.Errorf("bad chunk magic %v", magic)
		}
	}
	if _, err := r.u16(); err != nil { // major version
		return nil, fmt.Errorf("read major version: %w", err)
	}
	if _, err := r.u16(); err != nil { // minor version
		return nil, fmt.Errorf("read minor version: %w", err)
	}

	h := &chunkHeader{}
	fields := []*int64{
		&h.ChunkSize, &h.ConstantPoolOffset, &h.MetadataOffset,
		&h.StartNanos, &h.DurationNanos, &h.StartTicks, &h.TicksPerSec,
	}
	for _, f := range fields {
		v, err := r.i64()
		if err != nil {
			return nil, fmt.Errorf("read header field: %w", err)
		}
		*f = v
	}
	features, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	h.Features = int32(features)

	// Offsets and size on the wire are chunk-absolute (from the start
	// of this chunk's magic); the reader works in body-relative terms.
	h.ChunkSize -= int64(preambleSize + headerSize)
	h.ConstantPoolOffset -= int64(preambleSize + headerSize)
	h.MetadataOffset -= int64(preambleSize + headerSize)
	return h, nil
}

// chunk holds one parsed chunk: its header, metadata tree, merged
// constant pools, and a cursor into the event-record region.
type chunk struct {
	header        *chunkHeader
	body          *byteReader
	md            *Metadata
	dict          *dictionaries
	eventsEnd     int
	wantedKind    EventKind
	wantedInit    bool
	wantedTypeIDs map[int64]string
}

// parseChunk decodes one chunk starting at the beginning of raw.
// It returns the number of bytes consumed so the caller can advance
// to the next chunk.
func parseChunk(raw []byte) (*chunk, int, error) {
	hr := newByteReader(raw)
	hdr, err := parseChunkHeader(hr)
	if err != nil {
		return nil, 0, err
	}
	bodyStart := hr.offset()
	bodyLen := int(hdr.ChunkSize)
	if bodyLen < 0 {
		return nil, 0, fmt.Errorf("negative chunk body length %d", bodyLen)
	}
	if bodyStart+bodyLen > len(raw) {
		// Wrapping io.ErrUnexpectedEOF lets the reader treat a chunk cut
		// short by the end of the file as a tolerated truncated chunk.
		return nil, 0, fmt.Errorf("chunk body length %d exceeds available data: %w", bodyLen, io.ErrUnexpectedEOF)
	}
	body := raw[bodyStart : bodyStart+bodyLen]
	br := newByteReader(body)

	if err := br.seek(int(hdr.MetadataOffset)); err != nil {
		return nil, 0, fmt.Errorf("seek to metadata: %w", err)
	}
	md, err := parseMetadata(br)
	if err != nil {
		return nil, 0, fmt.Errorf("parse metadata: %w", err)
	}

	dict := newDictionaries()
	if err := parseCheckpoints(br, int(hdr.ConstantPoolOffset), md, dict); err != nil {
		return nil, 0, fmt.Errorf("parse constant pools: %w", err)
	}

	eventsEnd := int(hdr.MetadataOffset)
	if int(hdr.ConstantPoolOffset) < eventsEnd {
		eventsEnd = int(hdr.ConstantPoolOffset)
	}

	if err := br.seek(0); err != nil {
		return nil, 0, err
	}

	c := &chunk{header: hdr, body: br, md: md, dict: dict, eventsEnd: eventsEnd}
	return c, bodyStart + bodyLen, nil
}

// readEvent returns the next event of the given kind in file order, or
// (nil, nil) once the event-record region of this chunk is exhausted.
func (c *chunk) readEvent(kind EventKind) (*Event, error) {
	if !c.wantedInit || c.wantedKind != kind {
		c.wantedKind = kind
		c.wantedTypeIDs = c.resolveTypeIDs(kind)
		c.wantedInit = true
	}

	for c.body.offset() < c.eventsEnd {
		recStart := c.body.offset()
		size, err := c.body.varint()
		if err != nil {
			return nil, fmt.Errorf("event size: %w", err)
		}
		typeID, err := c.body.varint()
		if err != nil {
			return nil, fmt.Errorf("event type id: %w", err)
		}
		typeName, wanted := c.wantedTypeIDs[typeID]
		if !wanted {
			if err := c.body.seek(recStart + int(size)); err != nil {
				return nil, fmt.Errorf("skip event: %w", err)
			}
			continue
		}
		ev, err := parseEventPayload(c.body, kind, typeName)
		if err != nil {
			return nil, fmt.Errorf("parse event: %w", err)
		}
		if err := c.body.seek(recStart + int(size)); err != nil {
			return nil, fmt.Errorf("advance past event: %w", err)
		}
		return ev, nil
	}
	return nil, nil
}

func (c *chunk) resolveTypeIDs(kind EventKind) map[int64]string {
	names := eventClassNames(kind)
	ids := make(map[int64]string, len(names))
	for _, name := range names {
		if cls, ok := c.md.ByName[name]; ok {
			ids[cls.ID] = name
		}
	}
	return ids
}
