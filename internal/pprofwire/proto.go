// Package pprofwire hand-encodes pprof v1 profiles directly onto the
// protobuf wire format, without depending on a generated Profile
// struct. The message shapes and field numbers mirror the pprof
// proto (https://github.com/google/pprof/blob/main/proto/profile.proto)
// closely enough that github.com/google/pprof can read the result back,
// which the test suite uses to check round trips.
package pprofwire

// wireType tags, per the protobuf wire format.
const (
	wireVarint = 0
	wireBytes  = 2
)

// buffer is a growable byte buffer with the handful of protobuf
// primitives this encoder needs: varints, tagged fields, and
// length-delimited submessages. A submessage is built in a scratch
// buffer and copied in behind its length prefix; no length is reserved
// and back-patched in place.
type buffer struct {
	buf []byte
}

func newBuffer() *buffer { return &buffer{buf: make([]byte, 0, 4096)} }

func (b *buffer) Bytes() []byte { return b.buf }

func (b *buffer) writeVarint(v uint64) {
	for v >= 0x80 {
		b.buf = append(b.buf, byte(v)|0x80)
		v >>= 7
	}
	b.buf = append(b.buf, byte(v))
}

func (b *buffer) writeTag(field int, wt int) {
	b.writeVarint(uint64(field)<<3 | uint64(wt))
}

func (b *buffer) writeVarintField(field int, v int64) {
	if v == 0 {
		return
	}
	b.writeTag(field, wireVarint)
	b.writeVarint(uint64(v))
}

func (b *buffer) writeVarintFieldAlways(field int, v int64) {
	b.writeTag(field, wireVarint)
	b.writeVarint(uint64(v))
}

// writeMessageField encodes a length-delimited submessage. The body is
// built into a scratch buffer first so its length is known up front;
// this costs an extra allocation per nested message but keeps the
// varint bookkeeping trivial to get right.
func (b *buffer) writeMessageField(field int, fn func(*buffer)) {
	sub := newBuffer()
	fn(sub)
	b.writeTag(field, wireBytes)
	b.writeVarint(uint64(len(sub.buf)))
	b.buf = append(b.buf, sub.buf...)
}
