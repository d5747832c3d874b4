package jfr

import "fmt"

// eventClassNames lists the JFR event type names the reader recognizes
// for each requested EventKind. Allocation samples come from two
// distinct JFR event types that differ only in whether a TLAB was
// involved.
func eventClassNames(kind EventKind) []string {
	switch kind {
	case EventExecutionSample:
		return []string{"jdk.ExecutionSample"}
	case EventAllocationSample:
		return []string{"jdk.ObjectAllocationInNewTLAB", "jdk.ObjectAllocationOutsideTLAB"}
	case EventContendedLock:
		return []string{"jdk.JavaMonitorEnter"}
	case EventLiveObject:
		return []string{"jdk.OldObjectSample"}
	default:
		return nil
	}
}

// parseEventPayload decodes the kind-specific body that follows the
// common (time, tid) header. typeName disambiguates the two allocation
// event variants: an outside-TLAB allocation carries no tlabSize field
// on the wire and is reported with TLABSize == 0, matching how
// JfrToFlame.java picks "_[k]" vs "_[i]" off AllocationSample.tlabSize.
func parseEventPayload(r *byteReader, kind EventKind, typeName string) (*Event, error) {
	time, err := r.varint()
	if err != nil {
		return nil, fmt.Errorf("event time: %w", err)
	}
	tid, err := r.varint()
	if err != nil {
		return nil, fmt.Errorf("event tid: %w", err)
	}
	ev := &Event{Kind: kind, Time: time, Tid: tid}

	switch kind {
	case EventExecutionSample:
		stackID, err := r.varint()
		if err != nil {
			return nil, fmt.Errorf("stackId: %w", err)
		}
		state, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("threadState: %w", err)
		}
		ev.StackID = stackID
		ev.ThreadState = state

	case EventAllocationSample:
		stackID, err := r.varint()
		if err != nil {
			return nil, fmt.Errorf("stackId: %w", err)
		}
		classID, err := r.varint()
		if err != nil {
			return nil, fmt.Errorf("classId: %w", err)
		}
		size, err := r.varint()
		if err != nil {
			return nil, fmt.Errorf("allocationSize: %w", err)
		}
		ev.StackID = stackID
		ev.ClassID = classID
		ev.AllocationSize = size
		if typeName == "jdk.ObjectAllocationInNewTLAB" {
			tlab, err := r.varint()
			if err != nil {
				return nil, fmt.Errorf("tlabSize: %w", err)
			}
			ev.TLABSize = tlab
		}

	case EventContendedLock:
		stackID, err := r.varint()
		if err != nil {
			return nil, fmt.Errorf("stackId: %w", err)
		}
		classID, err := r.varint()
		if err != nil {
			return nil, fmt.Errorf("classId: %w", err)
		}
		duration, err := r.varint()
		if err != nil {
			return nil, fmt.Errorf("duration: %w", err)
		}
		ev.StackID = stackID
		ev.ClassID = classID
		ev.Duration = duration

	case EventLiveObject:
		stackID, err := r.varint()
		if err != nil {
			return nil, fmt.Errorf("stackId: %w", err)
		}
		classID, err := r.varint()
		if err != nil {
			return nil, fmt.Errorf("classId: %w", err)
		}
		size, err := r.varint()
		if err != nil {
			return nil, fmt.Errorf("allocationSize: %w", err)
		}
		ev.StackID = stackID
		ev.ClassID = classID
		ev.AllocationSize = size

	default:
		return nil, fmt.Errorf("unsupported event kind %d", kind)
	}
	return ev, nil
}
