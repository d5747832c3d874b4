package jfr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkBuilder writes a synthetic, self-consistent chunk using exactly
// the wire format parseChunk expects. There is no real .jfr fixture to
// read from, so tests build their own recordings the same way the
// reader would decode them.
type chunkBuilder struct {
	buf []byte
}

func (b *chunkBuilder) u8(v byte)    { b.buf = append(b.buf, v) }
func (b *chunkBuilder) u16(v uint16) { b.buf = append(b.buf, byte(v>>8), byte(v)) }
func (b *chunkBuilder) u32(v uint32) {
	b.buf = append(b.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
func (b *chunkBuilder) i64(v int64) {
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		b.buf = append(b.buf, byte(u>>(8*uint(i))))
	}
}

func (b *chunkBuilder) varuint(v uint64) {
	for i := 0; i < 8; i++ {
		if v < 0x80 {
			b.buf = append(b.buf, byte(v))
			return
		}
		b.buf = append(b.buf, byte(v&0x7f)|0x80)
		v >>= 7
	}
	b.buf = append(b.buf, byte(v))
}

func (b *chunkBuilder) varint(v int64) { b.varuint(uint64(v)) }

func (b *chunkBuilder) str(s string) {
	if s == "" {
		b.u8(stringEmpty)
		return
	}
	b.u8(stringUTF8)
	b.varint(int64(len(s)))
	b.buf = append(b.buf, s...)
}

// emptyCheckpoint is a checkpoint entry with no pools: delta=0 (last
// checkpoint in the chain) followed by a zero pool count.
func emptyCheckpoint() []byte {
	b := &chunkBuilder{}
	b.varint(0)
	b.varint(0)
	return b.buf
}

// buildChunk assembles a full chunk: magic, version, fixed header, then
// a body of [events][checkpoint chain][metadata], with header offsets
// filled in to match where each region actually landed. checkpoint, if
// nil, defaults to a valid empty checkpoint entry.
func buildChunk(t *testing.T, metadata, checkpoint, events []byte, startTicks, ticksPerSec int64) []byte {
	t.Helper()
	if checkpoint == nil {
		checkpoint = emptyCheckpoint()
	}

	body := &chunkBuilder{}
	body.buf = append(body.buf, events...)
	cpoolOff := len(body.buf)
	body.buf = append(body.buf, checkpoint...)
	metadataOff := len(body.buf)
	body.buf = append(body.buf, metadata...)

	out := &chunkBuilder{}
	out.buf = append(out.buf, chunkMagic[:]...)
	out.u16(2) // major
	out.u16(0) // minor

	totalSize := int64(preambleSize + headerSize + len(body.buf))
	out.i64(totalSize)
	out.i64(int64(preambleSize + headerSize + cpoolOff))
	out.i64(int64(preambleSize + headerSize + metadataOff))
	out.i64(0)              // startNanos
	out.i64(1_000_000_000)  // durationNanos
	out.i64(startTicks)
	out.i64(ticksPerSec)
	out.u32(0) // features

	out.buf = append(out.buf, body.buf...)
	return out.buf
}

// buildMetadata encodes a metadata region with one non-enum class per
// name/ID pair and, optionally, a FrameType enum carrying a Kernel
// member.
func buildMetadata(t *testing.T, classes map[string]int64, frameTypeHasKernel bool) []byte {
	t.Helper()
	b := &chunkBuilder{}
	extra := int64(0)
	if frameTypeHasKernel {
		extra = 1
	}
	b.varint(int64(len(classes)) + extra)
	for name, id := range classes {
		b.varint(id)
		b.str(name)
		b.u8(0) // not enum
		b.varint(0)
	}
	if frameTypeHasKernel {
		b.varint(999)
		b.str(typeNameFrameType)
		b.u8(1) // isEnum
		b.varint(0)
		b.varint(2) // member count
		b.varint(3)
		b.str("Native")
		b.varint(5)
		b.str("Kernel")
	}
	return b.buf
}

// buildStackTraceCheckpoint returns a full checkpoint entry containing a
// single jdk.types.StackTrace pool with one stack trace.
func buildStackTraceCheckpoint(t *testing.T, classID, stackID int64, methodIDs []int64) []byte {
	t.Helper()
	pool := &chunkBuilder{}
	pool.varint(1) // one stack trace
	pool.varint(stackID)
	pool.u8(0) // not truncated
	pool.varint(int64(len(methodIDs)))
	for _, m := range methodIDs {
		pool.varint(m)
		pool.u8(byte(FrameInterpreted))
		pool.varint(42)
	}

	b := &chunkBuilder{}
	b.varint(0) // delta: last checkpoint in the chain
	b.varint(1) // pool count
	b.varint(classID)
	b.varint(int64(len(pool.buf)))
	b.buf = append(b.buf, pool.buf...)
	return b.buf
}

func TestByteReaderVaruint(t *testing.T) {
	b := &chunkBuilder{}
	b.varuint(300)
	r := newByteReader(b.buf)
	v, err := r.varuint()
	require.NoError(t, err)
	assert.EqualValues(t, 300, v)
}

func TestByteReaderZigzag(t *testing.T) {
	cases := []int64{0, -1, 1, -64, 64, -1000000, 1000000}
	for _, want := range cases {
		b := &chunkBuilder{}
		u := uint64((want << 1) ^ (want >> 63))
		b.varuint(u)
		r := newByteReader(b.buf)
		got, err := r.zigzag()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReadStringVariants(t *testing.T) {
	b := &chunkBuilder{}
	b.str("hello")
	r := newByteReader(b.buf)
	s, err := r.readString(nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(s))

	symbols := map[int64][]byte{7: []byte("cached")}
	ref := &chunkBuilder{}
	ref.u8(stringCPRef)
	ref.varint(7)
	r2 := newByteReader(ref.buf)
	s2, err := r2.readString(symbols)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(s2))

	dangling := &chunkBuilder{}
	dangling.u8(stringCPRef)
	dangling.varint(99)
	r3 := newByteReader(dangling.buf)
	_, err = r3.readString(symbols)
	assert.Error(t, err)
}

func TestDictionaryClear(t *testing.T) {
	d := NewDictionary[int](4)
	d.Put(1, 100)
	assert.Equal(t, 1, d.Len())
	d.Clear()
	assert.Equal(t, 0, d.Len())
	_, ok := d.Get(1)
	assert.False(t, ok)
}

func TestEventValue(t *testing.T) {
	assert.EqualValues(t, 1, (&Event{Kind: EventExecutionSample}).Value())
	assert.EqualValues(t, 512, (&Event{Kind: EventAllocationSample, AllocationSize: 512}).Value())
	assert.EqualValues(t, 30, (&Event{Kind: EventContendedLock, Duration: 30}).Value())
	assert.EqualValues(t, 8, (&Event{Kind: EventLiveObject, AllocationSize: 8}).Value())
}

// TestReaderExecutionSamples exercises a full single-chunk round trip:
// metadata declaring jdk.ExecutionSample and jdk.types.StackTrace, a
// stack-trace constant pool, and two event records, one of an
// unrequested type that must be skipped by its length prefix.
func TestReaderExecutionSamples(t *testing.T) {
	classes := map[string]int64{
		"jdk.ExecutionSample": 10,
		"jdk.SomeOtherEvent":  11,
		typeNameStackTrace:    900,
	}
	metadata := buildMetadata(t, classes, false)
	checkpoint := buildStackTraceCheckpoint(t, 900, 1, []int64{1, 2, 3})

	ev := &chunkBuilder{}

	rec1 := &chunkBuilder{}
	rec1.varint(10) // type id
	rec1.varint(5)  // time
	rec1.varint(77) // tid
	rec1.varint(1)  // stackId
	rec1.u8(4)      // threadState
	ev.varint(int64(len(rec1.buf)) + 1) // size covers itself + payload
	ev.buf = append(ev.buf, rec1.buf...)

	rec2 := &chunkBuilder{}
	rec2.varint(11)
	rec2.varint(6)
	rec2.varint(78)
	rec2.buf = append(rec2.buf, 0xAA, 0xBB, 0xCC)
	ev.varint(int64(len(rec2.buf)) + 1)
	ev.buf = append(ev.buf, rec2.buf...)

	data := buildChunk(t, metadata, checkpoint, ev.buf, 0, 1_000_000_000)

	r := NewReader(data)
	got, err := r.ReadEvent(EventExecutionSample)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 77, got.Tid)
	assert.EqualValues(t, 1, got.StackID)
	assert.EqualValues(t, 4, got.ThreadState)

	st, ok := r.StackTrace(1)
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2, 3}, st.Methods)

	got2, err := r.ReadEvent(EventExecutionSample)
	require.NoError(t, err)
	assert.Nil(t, got2)
}

func TestFrameTypeKernelDetection(t *testing.T) {
	metadata := buildMetadata(t, map[string]int64{"jdk.ExecutionSample": 1}, true)

	rec := &chunkBuilder{}
	rec.varint(1) // type id
	rec.varint(0) // time
	rec.varint(1) // tid
	rec.varint(0) // stackId
	rec.u8(0)     // threadState
	ev := &chunkBuilder{}
	ev.varint(int64(len(rec.buf)) + 1)
	ev.buf = append(ev.buf, rec.buf...)

	data := buildChunk(t, metadata, nil, ev.buf, 0, 1_000_000_000)
	r := NewReader(data)
	got, err := r.ReadEvent(EventExecutionSample)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, r.HasNativeFrameType())
}

func TestTruncatedTrailingChunkTolerated(t *testing.T) {
	metadata := buildMetadata(t, map[string]int64{"jdk.ExecutionSample": 1}, false)
	data := buildChunk(t, metadata, nil, nil, 0, 1_000_000_000)
	data = append(data, 0x01, 0x02, 0x03) // trailing garbage shorter than a header

	r := NewReader(data)
	_, err := r.ReadEvent(EventExecutionSample)
	require.NoError(t, err)
	assert.False(t, r.HasMoreChunks())
	assert.NoError(t, r.Err())
}
