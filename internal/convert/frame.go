package convert

import "github.com/omribahumi/async-profiler/internal/jfr"

// frameKey packs a title's constant-pool index (assigned in first-seen
// order, not sorted order) and a FrameType into a single u32 node key:
// titleIndex | (frameType << 28).
type frameKey uint32

func makeFrameKey(titleIndex uint32, ft jfr.FrameType) frameKey {
	return frameKey(titleIndex | uint32(ft)<<28)
}

func (k frameKey) titleIndex() uint32    { return uint32(k) & 0x0fffffff }
func (k frameKey) frameType() jfr.FrameType { return jfr.FrameType(uint32(k) >> 28) }

// frame is one flame-graph tree node. The root has title index 0, the
// empty title (rendered as "all"), and frame type Native. children is kept as a map during construction;
// flamegraph.go sorts it into a slice at emission time.
type frame struct {
	key      frameKey
	total    uint64
	self     uint64
	inlined  uint64
	c1       uint64
	interp   uint64
	children map[frameKey]*frame
}

func newFrame(key frameKey) *frame {
	return &frame{key: key, children: make(map[frameKey]*frame)}
}

func (f *frame) child(key frameKey) *frame {
	c, ok := f.children[key]
	if !ok {
		c = newFrame(key)
		f.children[key] = c
	}
	return c
}

// depth returns the deepest subtree whose nodes all clear cutoff,
// used by the minimum-width pruning that computes the rendered HTML
// viewer height.
func (f *frame) depth(cutoff uint64) int {
	best := 0
	for _, c := range f.children {
		if c.total >= cutoff {
			if d := c.depth(cutoff); d > best {
				best = d
			}
		}
	}
	return best + 1
}

// effectiveType applies the rendering rule that a frame inlined/C1/
// interpreted often enough shows that instead of its own recorded
// type.
func (f *frame) effectiveType() jfr.FrameType {
	total := f.total
	switch {
	case total == 0:
		return f.key.frameType()
	case f.inlined*3 >= total:
		return jfr.FrameInlined
	case f.c1*2 >= total:
		return jfr.FrameC1Compiled
	case f.interp*2 >= total:
		return jfr.FrameInterpreted
	default:
		return f.key.frameType()
	}
}
