package convert

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/dolthub/swiss"

	"github.com/omribahumi/async-profiler/internal/args"
	"github.com/omribahumi/async-profiler/internal/jfr"
)

// Sample is one aggregator output: a representative event (for its
// stack trace and thread id) carrying a cumulative value.
type Sample struct {
	Event *jfr.Event
	Tid   int64
	Class string // synthetic top-of-stack class label, if any
	Value int64
}

type aggEntry struct {
	event *jfr.Event
	tid   int64
	class string
	value int64
}

// Aggregator collapses samples sharing a (stackTraceId, optional tid,
// optional class label) key into one cumulative value. Keys are hashed
// with xxhash into a single uint64 bucket key so the
// open-addressed table (github.com/dolthub/swiss) can work over a
// plain scalar; collisions between distinct keys are accepted as an
// astronomically unlikely trade-off rather than chained.
type Aggregator struct {
	args   *args.Arguments
	reader *jfr.Reader
	table  *swiss.Map[uint64, *aggEntry]

	fileStartNanos int64
	fileEndNanos   int64

	lastTicks int64
	haveLast  bool

	fromTicks int64
	toTicks   int64
	hasWindow bool

	stateOrdinals map[int32]bool
}

// NewAggregator builds an aggregator bound to reader/args. It scans the
// file's chunk headers once up front to resolve --to's "offset from
// end" form against the true recording end.
func NewAggregator(r *jfr.Reader, a *args.Arguments) (*Aggregator, error) {
	start, end, err := r.FileTimeRange()
	if err != nil {
		return nil, err
	}
	agg := &Aggregator{
		args:           a,
		reader:         r,
		table:          swiss.NewMap[uint64, *aggEntry](uint32(256)),
		fileStartNanos: start,
		fileEndNanos:   end,
	}
	return agg, nil
}

// BeginChunk resets per-chunk-local state (the cpu-mode inter-event
// tick cursor and the time window, which is recomputed relative to the
// new chunk's own startNanos/startTicks/ticksPerSec) and, if --state is
// set, resolves the requested state names against this chunk's own
// ThreadState enum.
func (a *Aggregator) BeginChunk() {
	a.haveLast = false
	a.recomputeWindow()
	a.resolveStateFilter()
}

func (a *Aggregator) resolveStateFilter() {
	if len(a.args.State) == 0 {
		a.stateOrdinals = nil
		return
	}
	a.stateOrdinals = make(map[int32]bool, len(a.args.State))
	for _, name := range a.args.State {
		if ord, ok := a.reader.MatchThreadState(name); ok {
			a.stateOrdinals[ord] = true
		}
	}
}

func (a *Aggregator) recomputeWindow() {
	if a.args.From == nil && a.args.To == nil {
		a.hasWindow = false
		return
	}
	a.hasWindow = true
	a.fromTicks = math.MinInt64
	a.toTicks = math.MaxInt64
	if a.args.From != nil {
		a.fromTicks = a.ticksForMS(*a.args.From)
	}
	if a.args.To != nil {
		a.toTicks = a.ticksForMS(*a.args.To)
	}
}

// ticksForMS converts one --from/--to operand to chunk-local ticks: an
// absolute epoch-ms value (≥1.5e12) is taken as a wall-clock
// time, a non-negative value is an offset from the
// recording's start, and a negative value is an offset from its end.
func (a *Aggregator) ticksForMS(ms int64) int64 {
	var targetNanos int64
	switch {
	case ms >= 1_500_000_000_000:
		targetNanos = ms * 1_000_000
	case ms >= 0:
		targetNanos = a.fileStartNanos + ms*1_000_000
	default:
		targetNanos = a.fileEndNanos + ms*1_000_000
	}
	if a.reader.TicksPerSec == 0 {
		return 0
	}
	deltaNanos := targetNanos - a.reader.ChunkStartNanos
	return deltaNanos * a.reader.TicksPerSec / 1_000_000_000
}

// Add folds one event into the aggregator, applying the time-window
// and thread-state filters and computing this event's contribution per
// the cpu/alloc/live/lock value semantics. classLabel
// is the synthetic top-of-stack class name for allocation/live/lock
// events with a non-zero classId, or "" otherwise.
func (a *Aggregator) Add(ev *jfr.Event, classLabel string) {
	if a.hasWindow && (ev.Time < a.fromTicks || ev.Time > a.toTicks) {
		return
	}
	if ev.Kind == jfr.EventExecutionSample && a.stateOrdinals != nil {
		if !a.stateOrdinals[int32(ev.ThreadState)] {
			return
		}
	}

	value := a.valueOf(ev)

	tid := int64(0)
	if a.args.Threads {
		tid = ev.Tid
	}
	class := ""
	if ev.Kind != jfr.EventExecutionSample && ev.ClassID != 0 {
		class = classLabel
	}

	key := bucketKey(ev.StackID, tid, class)
	if entry, ok := a.table.Get(key); ok {
		entry.value += value
		return
	}
	a.table.Put(key, &aggEntry{event: ev, tid: tid, class: class, value: value})
}

func (a *Aggregator) valueOf(ev *jfr.Event) int64 {
	switch ev.Kind {
	case jfr.EventExecutionSample:
		delta := a.tickDelta(ev.Time)
		nanos := int64(0)
		if a.reader.TicksPerSec != 0 {
			nanos = delta * 1_000_000_000 / a.reader.TicksPerSec
		}
		if a.args.Total {
			return nanos
		}
		return 1
	case jfr.EventAllocationSample, jfr.EventLiveObject:
		if a.args.Total {
			return ev.AllocationSize
		}
		return 1
	case jfr.EventContendedLock:
		if a.args.Total {
			return ev.Duration
		}
		return 1
	default:
		return 1
	}
}

// tickDelta returns the elapsed ticks since the previous event folded
// into this aggregator, used by cpu-mode value semantics. The first
// event of a chunk has no predecessor, so its own time is its delta.
func (a *Aggregator) tickDelta(t int64) int64 {
	if !a.haveLast {
		a.haveLast = true
		a.lastTicks = t
		return t
	}
	delta := t - a.lastTicks
	a.lastTicks = t
	if delta < 0 {
		return 0
	}
	return delta
}

// Samples drains and clears the aggregator's buckets; callers invoke it
// once per chunk, right after that chunk's events are exhausted and
// while the reader's dictionaries for it are still resolvable
// (stack-trace/class/method IDs are unique across the whole file by
// construction, but the reader itself only keeps one chunk's pools
// resolvable at a time). Order is unspecified; both consumers are
// order-insensitive.
func (a *Aggregator) Samples() []Sample {
	out := make([]Sample, 0, a.table.Count())
	a.table.Iter(func(_ uint64, e *aggEntry) bool {
		out = append(out, Sample{Event: e.event, Tid: e.tid, Class: e.class, Value: e.value})
		return false
	})
	a.table.Clear()
	return out
}

func bucketKey(stackID, tid int64, class string) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(stackID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(tid))
	h := xxhash.New()
	h.Write(buf[:])
	h.Write([]byte(class))
	return h.Sum64()
}
