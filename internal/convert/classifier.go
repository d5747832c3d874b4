package convert

import "strings"

// classifyRule is one first-match-wins prefix rule. Prefix is matched
// against a frame's class-qualified method name (the same text the
// resolver would otherwise emit for that frame).
type classifyRule struct {
	prefix string
	title  string
}

// classifyRules is a static table, not user-configurable. Ordered
// most-specific first so first-match-wins doesn't let a broad "java."
// rule shadow a narrower GC/JIT one.
var classifyRules = []classifyRule{
	{"java.lang.ref.", "GC"},
	{"sun.gc.", "GC"},
	{"jdk.internal.vm.compiler", "JIT"},
	{"sun.nio.ch.", "Network"},
	{"java.net.", "Network"},
	{"java.nio.channels.", "Network"},
	{"sun.nio.fs.", "Filesystem"},
	{"java.io.File", "Filesystem"},
	{"java.nio.file.", "Filesystem"},
	{"java.", "Java"},
	{"javax.", "Java"},
	{"jdk.", "Java"},
	{"sun.", "Java"},
}

const categoryNative = "Native"

// Classify walks the stack trace from the leaf (deepest frame, index 0)
// outward, skips native-like frames, and first-matches the first
// remaining frame's class-qualified name against classifyRules. A stack
// made entirely of native-like frames classifies as Native.
func (res *Resolver) Classify(methods []int64, types []byte) (title string, ft byte) {
	for i := 0; i < len(methods); i++ {
		if res.isNativeLike(types[i]) {
			continue
		}
		name := res.resolveMethodName(methods[i], types[i])
		for _, rule := range classifyRules {
			if strings.HasPrefix(name, rule.prefix) {
				return rule.title, types[i]
			}
		}
		return "Java", types[i]
	}
	if len(types) > 0 {
		return categoryNative, types[0]
	}
	return categoryNative, 0
}
