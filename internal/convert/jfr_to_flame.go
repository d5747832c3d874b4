package convert

import (
	"fmt"

	"github.com/omribahumi/async-profiler/internal/args"
	"github.com/omribahumi/async-profiler/internal/jfr"
)

// eventKindFor maps the CLI's event-class selector onto the jfr
// package's own EventKind, keeping internal/jfr ignorant of
// internal/args: the reader only knows event *classes*, selecting one
// of them is a converter-level concern.
func eventKindFor(e args.EventKind) jfr.EventKind {
	switch e {
	case args.EventAlloc:
		return jfr.EventAllocationSample
	case args.EventLive:
		return jfr.EventLiveObject
	case args.EventLock:
		return jfr.EventContendedLock
	default:
		return jfr.EventExecutionSample
	}
}

// frameSuffixFor is the forward half of the collapsed-text suffix
// table: every JFR-sourced frame is tagged with its own recorded type
// before being
// handed to FlameGraph.addChild, which decodes the same suffixes back
// into a type plus inlined/c1/interpreted counters uniformly with the
// collapsed-text path. Native and Cpp carry no suffix; addChild's
// unsuffixed heuristics classify those (and anything else without a
// marker) on the frame title's own shape.
func frameSuffixFor(ft jfr.FrameType) string {
	switch ft {
	case jfr.FrameInterpreted:
		return "_[0]"
	case jfr.FrameJITCompiled:
		return "_[j]"
	case jfr.FrameInlined:
		return "_[i]"
	case jfr.FrameKernel:
		return "_[k]"
	case jfr.FrameC1Compiled:
		return "_[1]"
	default:
		return ""
	}
}

// allocClassSuffix disambiguates the synthetic class-name frame:
// outside-TLAB allocations land in the Kernel-keyed bucket, in-TLAB
// ones in the JIT-compiled-keyed bucket with their weight counted as
// inlined (so they render as Inlined). Live-object and lock class frames
// carry no TLAB signal and fall back to addChild's plain title
// heuristic.
func allocClassSuffix(ev *jfr.Event) string {
	if ev.Kind != jfr.EventAllocationSample {
		return ""
	}
	if ev.TLABSize == 0 {
		return "_[k]"
	}
	return "_[i]"
}

// classLabelFor computes the synthetic top-of-stack class-name element
// the aggregator key (and, from there, both the flame and pprof
// traces) carries for allocation/live/lock events with a resolved
// class.
// The label itself is unsuffixed; frame-type tagging is presentation
// and applied separately by each consumer.
func classLabelFor(res *Resolver, ev *jfr.Event) string {
	if ev.Kind == jfr.EventExecutionSample || ev.ClassID == 0 {
		return ""
	}
	return res.ResolveClassName(ev.ClassID)
}

// buildFlameTrace assembles one sample's flame-graph trace array: an
// optional thread-name frame (root-most), an optional classifier
// category frame just inside it, the resolved stack reversed into
// root-to-leaf order (JFR's StackTrace.methods is deepest-call-first),
// and the synthetic allocation/live/lock class frame last (leaf-most).
func buildFlameTrace(res *Resolver, reader *jfr.Reader, s Sample, a *args.Arguments) []string {
	st, _ := reader.StackTrace(s.Event.StackID)

	trace := make([]string, 0, len(st.Methods)+3)
	if a.Threads {
		trace = append(trace, res.ResolveThreadName(s.Tid))
	}
	if a.Classify {
		title, ft := res.Classify(st.Methods, st.Types)
		trace = append(trace, title+frameSuffixFor(jfr.FrameType(ft)))
	}
	for i := len(st.Methods) - 1; i >= 0; i-- {
		name := res.ResolveFrame(st.Methods[i], st.Types[i], st.Locations[i])
		trace = append(trace, name+frameSuffixFor(jfr.FrameType(st.Types[i])))
	}
	if s.Class != "" {
		trace = append(trace, s.Class+allocClassSuffix(s.Event))
	}
	return trace
}

// ConvertJFR runs the JFR → flame-graph/collapsed-text pipeline over
// one recording, chunk by chunk. Each chunk's
// events are aggregated and drained before the reader is asked to move
// past it: the aggregator's stack-trace/class/method lookups, and the
// resolver's own cache, are only valid against whichever chunk the
// reader currently has open.
func ConvertJFR(data []byte, a *args.Arguments, sink Output) error {
	reader := jfr.NewReader(data)
	reader.StopAtNewChunk = true

	res := NewResolver(reader, a)
	agg, err := NewAggregator(reader, a)
	if err != nil {
		return fmt.Errorf("scan file time range: %w", err)
	}

	kind := eventKindFor(a.Event)
	for reader.HasMoreChunks() {
		begun := false
		for {
			ev, err := reader.ReadEvent(kind)
			if err != nil {
				return fmt.Errorf("read event: %w", err)
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

		for _, s := range agg.Samples() {
			sink.AddSample(buildFlameTrace(res, reader, s, a), s.Value)
		}
	}
	return reader.Err()
}
