package convert

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omribahumi/async-profiler/internal/args"
)

// childByTitle looks up a direct child by its resolved cpool title.
// Safe to call before Dump/printCpool runs, since a child's titleIndex
// is assigned by insertion order (fg.cpool.Get) the moment it's first
// seen, and Values() mirrors that same order.
func childByTitle(fg *FlameGraph, f *frame, title string) *frame {
	titles := fg.cpool.Values()
	for key, c := range f.children {
		if int(key.titleIndex()) < len(titles) && titles[key.titleIndex()] == title {
			return c
		}
	}
	return nil
}

func TestFlameGraphS1CollapsedInputBasic(t *testing.T) {
	fg := NewFlameGraph(&args.Arguments{})
	require.NoError(t, LoadCollapsed(strings.NewReader("a;b;c 5\nA;b;d 2\n"), fg))

	assert.EqualValues(t, 7, fg.root.total)

	a := childByTitle(fg, fg.root, "a")
	capA := childByTitle(fg, fg.root, "A")
	require.NotNil(t, a)
	require.NotNil(t, capA)
	assert.EqualValues(t, 5, a.total)
	assert.EqualValues(t, 2, capA.total)

	c := childByTitle(fg, childByTitle(fg, a, "b"), "c")
	require.NotNil(t, c)
	assert.EqualValues(t, 5, c.self)

	d := childByTitle(fg, childByTitle(fg, capA, "b"), "d")
	require.NotNil(t, d)
	assert.EqualValues(t, 2, d.self)
}

func TestFlameGraphS2ReverseSkip(t *testing.T) {
	fg := NewFlameGraph(&args.Arguments{Reverse: true, Skip: 1})
	require.NoError(t, LoadCollapsed(strings.NewReader("a;b;c 5\nA;b;d 2\n"), fg))

	c := childByTitle(fg, fg.root, "c")
	d := childByTitle(fg, fg.root, "d")
	require.NotNil(t, c)
	require.NotNil(t, d)
	assert.EqualValues(t, 5, c.total)
	assert.EqualValues(t, 2, d.total)

	cb := childByTitle(fg, c, "b")
	db := childByTitle(fg, d, "b")
	require.NotNil(t, cb)
	require.NotNil(t, db)
	assert.EqualValues(t, 5, cb.self)
	assert.EqualValues(t, 2, db.self)
}

func TestFlameGraphS3MintotalPrune(t *testing.T) {
	fg := NewFlameGraph(&args.Arguments{MinWidth: 5})
	require.NoError(t, LoadCollapsed(strings.NewReader("a 100\nb 1\n"), fg))

	var buf bytes.Buffer
	require.NoError(t, fg.Dump(&buf))

	assert.EqualValues(t, 101, fg.root.total)
	assert.EqualValues(t, 5, fg.mintotal)
	assert.Equal(t, 2, fg.root.depth(fg.mintotal))
}

func TestFlameGraphS4IncludeExclude(t *testing.T) {
	const input = "a;b;c 4\nx;y;z 3\n"

	fg1 := NewFlameGraph(&args.Arguments{Include: regexp.MustCompile("b")})
	require.NoError(t, LoadCollapsed(strings.NewReader(input), fg1))
	assert.EqualValues(t, 4, fg1.root.total)

	fg2 := NewFlameGraph(&args.Arguments{Include: regexp.MustCompile("b"), Exclude: regexp.MustCompile("y")})
	require.NoError(t, LoadCollapsed(strings.NewReader(input), fg2))
	assert.EqualValues(t, 4, fg2.root.total)

	fg3 := NewFlameGraph(&args.Arguments{Include: regexp.MustCompile("z"), Exclude: regexp.MustCompile("x")})
	require.NoError(t, LoadCollapsed(strings.NewReader(input), fg3))
	assert.EqualValues(t, 0, fg3.root.total)
}

// TestFlameGraphTreeConservation is Testable Property 1: every node's
// total equals its own self plus the sum of its children's totals.
func TestFlameGraphTreeConservation(t *testing.T) {
	fg := NewFlameGraph(&args.Arguments{})
	require.NoError(t, LoadCollapsed(strings.NewReader("a;b;c 5\nA;b;d 2\na;b;e 9\n"), fg))

	var check func(f *frame)
	check = func(f *frame) {
		var childSum uint64
		for _, c := range f.children {
			childSum += c.total
			check(c)
		}
		assert.Equal(t, f.total, f.self+childSum)
	}
	check(fg.root)
}

// TestCpoolPrefixCompressionRoundTrip is Testable Property 7: decoding
// the prefix-compressed constant pool with decode(prev, entry) =
// prev[:p] + entry[1:] reproduces the sorted title list exactly.
func TestCpoolPrefixCompressionRoundTrip(t *testing.T) {
	titles := []string{"", "com.Foo.bar", "com.Foo.baz", "com.Other.qux"}

	type entry struct {
		p      int
		suffix string
	}
	entries := make([]entry, len(titles))
	prev := ""
	for i, title := range titles {
		if i == 0 {
			entries[i] = entry{0, title}
		} else {
			p := commonPrefixLen(prev, title)
			if p > 95 {
				p = 95
			}
			entries[i] = entry{p, title[p:]}
		}
		prev = title
	}

	decoded := make([]string, len(entries))
	prevDecoded := ""
	for i, e := range entries {
		if i == 0 {
			decoded[i] = e.suffix
		} else {
			decoded[i] = prevDecoded[:e.p] + e.suffix
		}
		prevDecoded = decoded[i]
	}
	assert.Equal(t, titles, decoded)
}
