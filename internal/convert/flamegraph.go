package convert

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/omribahumi/async-profiler/assets"
	"github.com/omribahumi/async-profiler/internal/args"
	"github.com/omribahumi/async-profiler/internal/jfr"
	"github.com/omribahumi/async-profiler/internal/pprofwire"
)

// Output is the common sink both flame-graph renderers (tree-building
// HTML, and the streaming collapsed-text passthrough) implement.
type Output interface {
	AddSample(trace []string, weight int64)
	Dump(w io.Writer) error
}

// FlameGraph builds the prefix-merged frame tree and renders it into
// the opaque HTML template via ordered marker substitution.
type FlameGraph struct {
	args  *args.Arguments
	cpool *pprofwire.Index[string]
	root  *frame

	order     []int
	depth     int
	lastLevel int
	lastX     int64
	lastTotal int64
	mintotal  uint64
}

func NewFlameGraph(a *args.Arguments) *FlameGraph {
	return &FlameGraph{
		args:  a,
		cpool: pprofwire.NewIndex(""),
		root:  newFrame(makeFrameKey(0, jfr.FrameNative)),
	}
}

// AddSample runs include/exclude filtering, --skip, --reverse, then a
// root-to-leaf tree upsert.
func (fg *FlameGraph) AddSample(trace []string, weight int64) {
	if fg.excludeTrace(trace) {
		return
	}

	node := fg.root
	if fg.args.Reverse {
		for i := len(trace) - 1; i >= fg.args.Skip; i-- {
			node = fg.addChild(node, trace[i], weight)
		}
	} else {
		for i := fg.args.Skip; i < len(trace); i++ {
			node = fg.addChild(node, trace[i], weight)
		}
	}
	node.total += uint64(weight)
	node.self += uint64(weight)

	if len(trace) > fg.depth {
		fg.depth = len(trace)
	}
}

// excludeTrace applies the combined include/exclude filtering: traverse
// top-to-bottom, exclude wins within a frame, and once an include match
// is seen with no exclude having fired yet the sample passes. Patterns
// are matched against the whole frame title, not a substring of it, the
// same way FlameGraph.java's own include/exclude check anchors with
// Matcher.matches() rather than Matcher.find().
func (fg *FlameGraph) excludeTrace(trace []string) bool {
	include := fg.args.Include
	exclude := fg.args.Exclude
	if include == nil && exclude == nil {
		return false
	}
	for _, f := range trace {
		if exclude != nil && fullMatch(exclude, f) {
			return true
		}
		if include != nil && fullMatch(include, f) {
			if exclude == nil {
				return false
			}
			include = nil
		}
	}
	return include != nil
}

// fullMatch reports whether re matches the entirety of s, matching Java's
// Matcher.matches() semantics rather than Go regexp's default
// find-a-substring MatchString behavior.
func fullMatch(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// addChild infers a frame's type from the collapsed-text suffix
// grammar, which every trace element (whether
// sourced from a JFR stack frame or a loaded collapsed file) already
// carries. _[i]/_[1]/_[0] frames are folded into the same JIT-compiled
// bucket as their unsuffixed sibling, with the occurrence tallied in
// the node's inlined/c1/interpreted counters so the effective-type
// rule can later re-derive the displayed type from the ratio.
func (fg *FlameGraph) addChild(parent *frame, title string, weight int64) *frame {
	parent.total += uint64(weight)

	var child *frame
	switch {
	case strings.HasSuffix(title, "_[j]"):
		child = fg.getChild(parent, stripFrameSuffix(title), jfr.FrameJITCompiled)
	case strings.HasSuffix(title, "_[i]"):
		child = fg.getChild(parent, stripFrameSuffix(title), jfr.FrameJITCompiled)
		child.inlined += uint64(weight)
	case strings.HasSuffix(title, "_[k]"):
		child = fg.getChild(parent, stripFrameSuffix(title), jfr.FrameKernel)
	case strings.HasSuffix(title, "_[1]"):
		child = fg.getChild(parent, stripFrameSuffix(title), jfr.FrameJITCompiled)
		child.c1 += uint64(weight)
	case strings.HasSuffix(title, "_[0]"):
		child = fg.getChild(parent, stripFrameSuffix(title), jfr.FrameJITCompiled)
		child.interp += uint64(weight)
	case strings.Contains(title, "::") || strings.HasPrefix(title, "-[") || strings.HasPrefix(title, "+["):
		child = fg.getChild(parent, title, jfr.FrameCpp)
	case looksJITCompiled(title):
		child = fg.getChild(parent, title, jfr.FrameJITCompiled)
	default:
		child = fg.getChild(parent, title, jfr.FrameNative)
	}
	return child
}

func looksJITCompiled(title string) bool {
	if i := strings.IndexByte(title, '/'); i > 0 && title[0] != '[' {
		return true
	}
	if i := strings.IndexByte(title, '.'); i > 0 {
		c := title[0]
		return c >= 'A' && c <= 'Z'
	}
	return false
}

func stripFrameSuffix(title string) string {
	return title[:len(title)-4]
}

func (fg *FlameGraph) getChild(parent *frame, title string, ft jfr.FrameType) *frame {
	key := makeFrameKey(uint32(fg.cpool.Get(title)), ft)
	return parent.child(key)
}

// Dump renders the tree into the opaque HTML template
// (assets/flame.html) via its seven ordered substitution markers.
func (fg *FlameGraph) Dump(w io.Writer) error {
	fg.mintotal = uint64(float64(fg.root.total) * fg.args.MinWidth / 100)
	depth := fg.depth + 1
	if fg.mintotal > 1 {
		depth = fg.root.depth(fg.mintotal)
	}

	tail := assets.FlameHTML

	tail = printTill(w, tail, "/*height:*/300")
	h := depth * 16
	if h > 32767 {
		h = 32767
	}
	fmt.Fprint(w, h)

	tail = printTill(w, tail, "/*title:*/")
	io.WriteString(w, escapeFrameTitle(fg.args.Title))

	tail = printTill(w, tail, "/*reverse:*/false")
	fmt.Fprint(w, fg.args.Reverse)

	tail = printTill(w, tail, "/*depth:*/0")
	fmt.Fprint(w, depth)

	tail = printTill(w, tail, "/*cpool:*/")
	fg.printCpool(w)

	tail = printTill(w, tail, "/*frames:*/")
	fg.printFrame(w, fg.root, 0, 0)

	tail = printTill(w, tail, "/*highlight:*/")
	if fg.args.Highlight != "" {
		fmt.Fprintf(w, "'%s'", escapeFrameTitle(fg.args.Highlight))
	}

	_, err := io.WriteString(w, tail)
	return err
}

func printTill(w io.Writer, data, till string) string {
	idx := strings.Index(data, till)
	io.WriteString(w, data[:idx])
	return data[idx+len(till):]
}

// printCpool writes the prefix-compressed constant pool: sorted unique
// titles, each entry storing only its divergence from the previous one
// (capped at 95 bytes of shared prefix).
func (fg *FlameGraph) printCpool(w io.Writer) {
	titles := append([]string(nil), fg.cpool.Values()...)
	slices.Sort(titles)

	io.WriteString(w, "'all'")

	fg.order = make([]int, len(titles))
	prev := ""
	for i := 1; i < len(titles); i++ {
		p := commonPrefixLen(prev, titles[i])
		if p > 95 {
			p = 95
		}
		prev = titles[i]
		fmt.Fprintf(w, ",\n'%s'", escapeFrameTitle(string(rune(p+0x20))+titles[i][p:]))
		fg.order[fg.cpool.Get(titles[i])] = i
	}
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] || a[i] > 127 {
			return i
		}
	}
	return n
}

func escapeFrameTitle(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s
}

// printFrame emits the frame script depth-first.
func (fg *FlameGraph) printFrame(w io.Writer, f *frame, level int, x int64) {
	nameAndType := fg.order[f.key.titleIndex()]<<3 | int(f.effectiveType())
	hasExtraTypes := (f.inlined|f.c1|f.interp) != 0 && f.inlined < f.total && f.interp < f.total

	call := "f"
	switch {
	case level == fg.lastLevel+1 && x == fg.lastX:
		call = "u"
	case level == fg.lastLevel && x == fg.lastX+fg.lastTotal:
		call = "n"
	}

	var b strings.Builder
	b.WriteString(call)
	b.WriteByte('(')
	b.WriteString(strconv.Itoa(nameAndType))
	if call == "f" {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(level))
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(x-fg.lastX, 10))
	}
	if f.total != uint64(fg.lastTotal) || hasExtraTypes {
		b.WriteByte(',')
		b.WriteString(strconv.FormatUint(f.total, 10))
		if hasExtraTypes {
			b.WriteByte(',')
			b.WriteString(strconv.FormatUint(f.inlined, 10))
			b.WriteByte(',')
			b.WriteString(strconv.FormatUint(f.c1, 10))
			b.WriteByte(',')
			b.WriteString(strconv.FormatUint(f.interp, 10))
		}
	}
	b.WriteByte(')')
	fmt.Fprintln(w, b.String())

	fg.lastLevel = level
	fg.lastX = x
	fg.lastTotal = int64(f.total)

	children := make([]*frame, 0, len(f.children))
	for _, c := range f.children {
		children = append(children, c)
	}
	slices.SortFunc(children, func(a, b *frame) int {
		return fg.order[a.key.titleIndex()] - fg.order[b.key.titleIndex()]
	})

	x += int64(f.self)
	for _, c := range children {
		if c.total >= fg.mintotal {
			fg.printFrame(w, c, level+1, x)
		}
		x += int64(c.total)
	}
}
