// Package convert implements the conversion pipelines that turn JFR
// recordings (or collapsed-text stack listings) into flame graphs and
// pprof profiles: name resolution, event aggregation, classification,
// and the two output encoders.
package convert

import (
	"strconv"
	"strings"

	"github.com/omribahumi/async-profiler/internal/args"
	"github.com/omribahumi/async-profiler/internal/jfr"
)

const (
	unknownMethod = "unknown"
	unknownClass  = "null"
)

// Resolver turns the numeric IDs on a JFR event's stack trace into the
// display strings the flame-graph and pprof encoders consume. It owns
// a per-chunk cache of fully formatted frame names; ResetChunk must be
// called at every chunk boundary.
type Resolver struct {
	reader *jfr.Reader
	args   *args.Arguments
	frames *jfr.Dictionary[string]
}

func NewResolver(r *jfr.Reader, a *args.Arguments) *Resolver {
	return &Resolver{reader: r, args: a, frames: jfr.NewDictionary[string](256)}
}

// ResetChunk drops the method-name cache. The underlying jfr.Reader
// already scopes its symbol/class/method dictionaries to the chunk
// currently being read, so cached names from a prior chunk would be
// stale (or reference IDs no longer valid) once the reader advances.
func (res *Resolver) ResetChunk() {
	res.frames.Clear()
}

// isNativeLike reports whether a raw stack-frame type ordinal should
// skip class-name formatting and report the bare method/symbol name.
// FrameCpp and FrameKernel are always native-like; FrameNative only is
// when this
// chunk's own jdk.types.FrameType enum describes a Kernel member,
// meaning the recording is async-profiler-origin (where Native means a
// C frame) rather than vanilla JDK JFR (where Native means a Java
// native method, still resolved with a class-qualified name).
func (res *Resolver) isNativeLike(ordinal byte) bool {
	switch jfr.FrameType(ordinal) {
	case jfr.FrameCpp, jfr.FrameKernel:
		return true
	case jfr.FrameNative:
		return res.reader.HasNativeFrameType()
	default:
		return false
	}
}

// ResolveFrame formats one stack-trace frame into display text,
// applying --lines/--bci suffixes (suffix only when the value is
// non-zero, matching the original converter).
func (res *Resolver) ResolveFrame(methodID int64, frameTypeOrdinal byte, location uint32) string {
	cacheKey := methodID<<8 | int64(frameTypeOrdinal)
	base, cached := res.frames.Get(cacheKey)
	if !cached {
		base = res.resolveMethodName(methodID, frameTypeOrdinal)
		res.frames.Put(cacheKey, base)
	}

	if !res.args.Lines && !res.args.BCI {
		return base
	}
	line := location >> 16
	bci := location & 0xffff
	var b strings.Builder
	b.WriteString(base)
	if res.args.Lines && line != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(line)))
	}
	if res.args.BCI && bci != 0 {
		b.WriteByte('@')
		b.WriteString(strconv.Itoa(int(bci)))
	}
	return b.String()
}

func (res *Resolver) resolveMethodName(methodID int64, frameTypeOrdinal byte) string {
	m, ok := res.reader.Method(methodID)
	if !ok {
		return unknownMethod
	}
	methodName := res.symbolString(m.Name)

	var className string
	if cls, ok := res.reader.Class(m.Class); ok {
		className = res.symbolString(cls.Name)
	}

	if className == "" || res.isNativeLike(frameTypeOrdinal) {
		return methodName
	}
	classStr := res.toJavaClassName(className, false)
	if methodName == "" {
		return classStr
	}
	return classStr + "." + methodName
}

// ResolveClassName resolves a class constant-pool entry to a display
// name: array depth is counted off the raw symbol's leading '[' bytes.
// Only at
// non-zero depth does the remainder carry JVM field-descriptor syntax
// (a single primitive byte, or an `L...;`-enveloped class name) that
// needs stripping before the usual name transform; a non-array class
// symbol is already a plain slash-separated name and must not be run
// through descriptor stripping (which would misfire on any class name
// that happens to start with a descriptor letter like 'B' or 'Z').
func (res *Resolver) ResolveClassName(classID int64) string {
	cls, ok := res.reader.Class(classID)
	if !ok {
		return unknownClass
	}
	raw := res.symbolString(cls.Name)
	if raw == "" {
		return unknownClass
	}
	depth := 0
	for depth < len(raw) && raw[depth] == '[' {
		depth++
	}
	suffix := strings.Repeat("[]", depth)

	rest := raw[depth:]
	if depth == 0 {
		return res.toJavaClassName(rest, true)
	}
	if prim, ok := primitiveDescriptors[rest[0]]; ok {
		return prim + suffix
	}
	if rest[0] == 'L' && strings.HasSuffix(rest, ";") {
		rest = rest[1 : len(rest)-1]
	}
	return res.toJavaClassName(rest, true) + suffix
}

// ResolveThreadName formats a thread id as "[name tid=N]", or
// "[tid=N]" when the thread reference is unresolved or unnamed.
func (res *Resolver) ResolveThreadName(tid int64) string {
	th, ok := res.reader.Thread(tid)
	if !ok || th.Name == "" {
		return "[tid=" + strconv.FormatInt(tid, 10) + "]"
	}
	return "[" + th.Name + " tid=" + strconv.FormatInt(tid, 10) + "]"
}

func (res *Resolver) symbolString(symbolID int64) string {
	b, ok := res.reader.Symbol(symbolID)
	if !ok {
		return ""
	}
	return string(b)
}

// toJavaClassName applies the --norm/--simple/--dot chain (descriptor
// stripping, when applicable, happens in the caller
// before this runs — see ResolveClassName). forceDot bypasses the
// --dot flag for callers (ResolveClassName) that always dot regardless
// of user options.
func (res *Resolver) toJavaClassName(name string, forceDot bool) string {
	if res.args.Norm {
		name = normalizeHiddenClass(name)
	}
	if res.args.Simple {
		name = simplifyPath(name)
	}
	if res.args.Dot || forceDot {
		name = strings.ReplaceAll(name, "/", ".")
	}
	return name
}

var primitiveDescriptors = map[byte]string{
	'B': "byte", 'C': "char", 'S': "short", 'I': "int",
	'J': "long", 'Z': "boolean", 'F': "float", 'D': "double",
}

// normalizeHiddenClass strips the `$$Lambda+0xADDR/RAND` (or the dotted
// equivalent) tail async-profiler's hidden-class and lambda names
// carry: find the rightmost '/' or '.', and if the
// character right after it is a digit, truncate there; if that cut
// point is preceded 19 bytes earlier by "+0", truncate there instead
// (strips the literal `$$Lambda+0xADDR` address prefix too).
func normalizeHiddenClass(name string) string {
	for i := len(name) - 2; i > 0; i-- {
		if name[i] != '/' && name[i] != '.' {
			continue
		}
		if name[i+1] < '0' || name[i+1] > '9' {
			break
		}
		cut := i
		if cut >= 19 && name[cut-19] == '+' && name[cut-18] == '0' {
			cut -= 19
		}
		return name[:cut]
	}
	return name
}

// simplifyPath implements --simple: strip any path prefix up to the
// last '/' that isn't immediately followed by a digit.
func simplifyPath(name string) string {
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == '/' && i+1 < len(name) && !(name[i+1] >= '0' && name[i+1] <= '9') {
			return name[i+1:]
		}
	}
	return name
}
