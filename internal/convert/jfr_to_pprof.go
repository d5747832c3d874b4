package convert

import (
	"fmt"

	"github.com/omribahumi/async-profiler/internal/args"
	"github.com/omribahumi/async-profiler/internal/jfr"
	"github.com/omribahumi/async-profiler/internal/pprofwire"
)

const commentAsyncProfiler = "async-profiler"

// sampleTypeFor picks the single sample-type dimension, named and
// unit'd by the selected event class and whether --total is set.
func sampleTypeFor(a *args.Arguments) pprofwire.ValueType {
	switch a.Event {
	case args.EventAlloc, args.EventLive:
		if a.Total {
			return pprofwire.ValueType{Type: "allocations", Unit: "bytes"}
		}
		return pprofwire.ValueType{Type: "allocations", Unit: "count"}
	case args.EventLock:
		if a.Total {
			return pprofwire.ValueType{Type: "locks", Unit: "nanoseconds"}
		}
		return pprofwire.ValueType{Type: "locks", Unit: "count"}
	default:
		if a.Total {
			return pprofwire.ValueType{Type: "cpu", Unit: "nanoseconds"}
		}
		return pprofwire.ValueType{Type: "cpu", Unit: "count"}
	}
}

// buildPprofLocations interns each frame and returns their location
// ids in pprof's own leaf-first convention (innermost call first),
// which is exactly how JFR's StackTrace.methods already comes
// (deepest call first) — no reversal needed, unlike the flame path. The
// synthetic allocation/live/lock class frame, when present, is even
// more leaf-side than the sampled call stack, so it is prepended.
func buildPprofLocations(res *Resolver, reader *jfr.Reader, b *pprofwire.Builder, s Sample) []int64 {
	st, _ := reader.StackTrace(s.Event.StackID)

	ids := make([]int64, 0, len(st.Methods)+1)
	if s.Class != "" {
		ids = append(ids, b.InternFrame(s.Class))
	}
	for i := range st.Methods {
		name := res.ResolveFrame(st.Methods[i], st.Types[i], st.Locations[i])
		ids = append(ids, b.InternFrame(name))
	}
	return ids
}

func pprofLabels(res *Resolver, reader *jfr.Reader, s Sample, a *args.Arguments) []pprofwire.Label {
	var labels []pprofwire.Label
	if a.Threads {
		labels = append(labels, pprofwire.Label{Key: "thread", Str: res.ResolveThreadName(s.Tid)})
	}
	if a.Classify {
		st, _ := reader.StackTrace(s.Event.StackID)
		title, _ := res.Classify(st.Methods, st.Types)
		labels = append(labels, pprofwire.Label{Key: "category", Str: title})
	}
	return labels
}

// ConvertJFRToPprof runs the JFR → pprof pipeline, draining the
// aggregator once per chunk for the same reason ConvertJFR does: the
// reader's constant pools for a chunk stop being resolvable once the
// reader is asked to move past it. gzip requests gzip framing; the
// caller decides that from the output path's extension, not this
// package.
func ConvertJFRToPprof(data []byte, a *args.Arguments, gzip bool) ([]byte, error) {
	reader := jfr.NewReader(data)
	reader.StopAtNewChunk = true

	res := NewResolver(reader, a)
	agg, err := NewAggregator(reader, a)
	if err != nil {
		return nil, fmt.Errorf("scan file time range: %w", err)
	}

	vt := sampleTypeFor(a)
	b := pprofwire.NewBuilder([]pprofwire.ValueType{vt}, vt.Type)

	kind := eventKindFor(a.Event)
	var endNanos int64

	for reader.HasMoreChunks() {
		begun := false
		for {
			ev, err := reader.ReadEvent(kind)
			if err != nil {
				return nil, fmt.Errorf("read event: %w", err)
			}
			if ev == nil {
				break
			}
			if !begun {
				res.ResetChunk()
				agg.BeginChunk()
				begun = true
			}
			agg.Add(ev, classLabelFor(res, ev))
		}
		if begun && reader.EndNanos > endNanos {
			endNanos = reader.EndNanos
		}

		for _, s := range agg.Samples() {
			locIDs := buildPprofLocations(res, reader, b, s)
			labels := pprofLabels(res, reader, s, a)
			b.AddSample(locIDs, []int64{s.Value}, labels)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}

	b.SetTimeNanos(reader.StartNanos)
	b.SetDurationNanos(endNanos - reader.StartNanos)
	b.AddComment(commentAsyncProfiler)

	if gzip {
		return b.EncodeGzip()
	}
	return b.Encode(), nil
}
