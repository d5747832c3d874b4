package jfr

// FrameType mirrors one.convert.Frame's TYPE_* constants and
// jdk.types.FrameType's enum members.
type FrameType byte

const (
	FrameInterpreted FrameType = 0
	FrameJITCompiled FrameType = 1
	FrameInlined     FrameType = 2
	FrameNative      FrameType = 3
	FrameCpp         FrameType = 4
	FrameKernel      FrameType = 5
	FrameC1Compiled  FrameType = 6
)

// Symbol is an interned UTF-8 byte string owned by the reader and
// resolvable while the chunk that defines it is current.
type Symbol []byte

// ClassRef is a constant-pool entry describing a Java class.
type ClassRef struct {
	Name      int64 // symbol ID
	Package   int64 // symbol ID, 0 if absent
	Modifiers uint16
}

// MethodRef is a constant-pool entry describing a Java method.
type MethodRef struct {
	Class     int64 // class ID
	Name      int64 // symbol ID
	Sig       int64 // symbol ID
	Modifiers uint16
	Type      byte
}

// StackTrace is the parallel-array stack representation JFR writes to
// the wire: one entry per frame, deepest call first.
type StackTrace struct {
	Methods   []int64
	Types     []byte
	Locations []uint32 // (lineNumber << 16) | bytecodeIndex
	Truncated bool
}

// ThreadRef names a thread by its recorded OS thread id.
type ThreadRef struct {
	Name string
}

// EventKind identifies which of the four supported JFR event classes a
// record belongs to.
type EventKind byte

const (
	EventExecutionSample EventKind = iota
	EventAllocationSample
	EventContendedLock
	EventLiveObject
)

// Event is the closed tagged-variant event hierarchy this reader
// supports. All four kinds share the Time/Tid/StackID header; the
// remaining fields are populated per-kind and zero otherwise.
type Event struct {
	Kind    EventKind
	Time    int64 // chunk-local ticks
	Tid     int64
	StackID int64

	ThreadState byte // EventExecutionSample

	ClassID        int64 // EventAllocationSample, EventContendedLock, EventLiveObject
	AllocationSize int64 // EventAllocationSample, EventLiveObject
	TLABSize       int64 // EventAllocationSample; 0 means an outside-TLAB allocation
	Duration       int64 // EventContendedLock
}

// Value returns the event's natural weight contribution, matching
// one.jfr.event.Event#value(): allocation size for allocation/live
// samples, lock duration for contended locks, and 1 tick otherwise
// (execution samples are weighted by elapsed ticks by the aggregator,
// not by this method).
func (e *Event) Value() int64 {
	switch e.Kind {
	case EventAllocationSample, EventLiveObject:
		return e.AllocationSize
	case EventContendedLock:
		return e.Duration
	default:
		return 1
	}
}
