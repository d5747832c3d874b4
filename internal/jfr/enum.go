package jfr

import "strings"

// EnumValue looks up the label for an enum ordinal in the named
// metadata type, e.g. EnumValue("jdk.types.ThreadState", 5) returning
// "STATE_RUNNABLE".
func (md *Metadata) EnumValue(typeName string, ordinal int32) (string, bool) {
	cls, ok := md.ByName[typeName]
	if !ok || !cls.IsEnum {
		return "", false
	}
	name, ok := cls.EnumMembers[ordinal]
	return name, ok
}

// EnumKey is the inverse of EnumValue: it finds the ordinal whose label
// matches, used by --state to turn a user-supplied state name back into
// the ordinal stored on events.
func (md *Metadata) EnumKey(typeName, label string) (int32, bool) {
	cls, ok := md.ByName[typeName]
	if !ok || !cls.IsEnum {
		return 0, false
	}
	for k, v := range cls.EnumMembers {
		if v == label {
			return k, true
		}
	}
	return 0, false
}

// HasNativeFrameType reports whether this chunk's jdk.types.FrameType
// enum table describes a member at the Kernel ordinal (5). Recordings
// taken directly by the JVM never describe kernel frames; recordings
// produced by async-profiler's own JFR output do. FrameNative is
// ambiguous between the two origins (native library frame vs
// JVM-internal native method), so the resolver uses this to decide
// which meaning applies for a FrameNative frame.
func (md *Metadata) HasNativeFrameType() bool {
	_, ok := md.EnumValue(typeNameFrameType, int32(FrameKernel))
	return ok
}

// MatchThreadState finds the ordinal for a --state argument, matching
// either the bare suffix ("RUNNABLE") or the full STATE_ prefixed form
// async-profiler's ThreadState enum uses ("STATE_RUNNABLE").
func (md *Metadata) MatchThreadState(name string) (int32, bool) {
	if ord, ok := md.EnumKey(typeNameThreadState, name); ok {
		return ord, true
	}
	if !strings.HasPrefix(name, "STATE_") {
		return md.EnumKey(typeNameThreadState, "STATE_"+name)
	}
	return 0, false
}
