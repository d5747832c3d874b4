package convert

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// CollapsedStacks is a streaming Output that prints each sample
// immediately instead of building a tree, backing the collapsed output
// format (an output path ending in .collapsed).
// Per the original CollapsedStacks.dump it applies none of
// FlameGraph's include/exclude/skip/reverse filtering, only the raw
// trace and weight.
type CollapsedStacks struct {
	w   *bufio.Writer
	buf strings.Builder
}

func NewCollapsedStacks(w io.Writer) *CollapsedStacks {
	return &CollapsedStacks{w: bufio.NewWriter(w)}
}

func (c *CollapsedStacks) AddSample(trace []string, weight int64) {
	c.buf.Reset()
	for _, s := range trace {
		c.buf.WriteString(s)
		c.buf.WriteByte(';')
	}
	line := c.buf.String()
	if len(line) > 0 {
		line = line[:len(line)-1] + " "
	}
	c.w.WriteString(line)
	c.w.WriteString(strconv.FormatInt(weight, 10))
	c.w.WriteByte('\n')
}

// Dump flushes the buffered writer; every sample was already printed
// as it arrived.
func (c *CollapsedStacks) Dump(_ io.Writer) error {
	return c.w.Flush()
}

// LoadCollapsed parses a previously collapsed-stack text file and
// feeds each line's trace and weight into sink, letting AddSample's
// own suffix-based frame-type inference apply uniformly to both this
// and the JFR path.
func LoadCollapsed(r io.Reader, sink Output) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		space := strings.LastIndexByte(line, ' ')
		if space <= 0 {
			continue
		}
		weight, err := strconv.ParseInt(line[space+1:], 10, 64)
		if err != nil {
			continue
		}
		trace := strings.Split(line[:space], ";")
		sink.AddSample(trace, weight)
	}
	return sc.Err()
}
