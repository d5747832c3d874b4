// Package args binds the converter's command-line surface onto a
// single Arguments struct using gopkg.in/alecthomas/kingpin.v2, binding
// CLI flags directly onto typed fields rather than threading a generic
// flag.FlagSet through the program.
package args

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

// ErrInvalidArgument is returned for invalid command-line arguments:
// unknown flags (kingpin itself rejects those), malformed regexes, or
// conflicting event-class selectors. cmd/jfrconv maps it to exit code 2.
// --state names are not checked here; a name that matches no member of a
// chunk's ThreadState enum is ignored when that chunk is filtered.
var ErrInvalidArgument = errors.New("invalid argument")

// EventKind selects which JFR event class the run operates on.
type EventKind int

const (
	EventCPU EventKind = iota
	EventAlloc
	EventLive
	EventLock
)

// Arguments is the fully parsed and validated set of converter options.
type Arguments struct {
	Title     string
	MinWidth  float64
	Skip      int
	Reverse   bool
	Include   *regexp.Regexp
	Exclude   *regexp.Regexp
	Highlight string

	Event   EventKind
	Threads bool
	State   []string
	Classify bool
	Total   bool
	Lines   bool
	BCI     bool

	Simple bool
	Norm   bool
	Dot    bool

	From *int64
	To   *int64

	Inputs []string
	Output string

	rawInclude string
	rawExclude string
	alloc      bool
	live       bool
	lock       bool
}

// Parse builds an Arguments from argv (excluding the program name),
// running kingpin's own flag parsing and then this package's domain
// validation (regex compilation, mutually-exclusive event selectors).
func Parse(appName, version string, argv []string) (*Arguments, error) {
	app := kingpin.New(appName, "Converts JFR recordings to flame graphs, pprof profiles, or collapsed stacks.")
	app.Version(version)
	app.HelpFlag.Short('h')

	a := &Arguments{}

	app.Flag("title", "Flame-graph page title.").StringVar(&a.Title)
	app.Flag("minwidth", "Prune frames narrower than this percent of root.total.").Default("0").Float64Var(&a.MinWidth)
	app.Flag("skip", "Drop the first N frames of every sample.").Default("0").IntVar(&a.Skip)
	app.Flag("reverse", "Root the flame graph at the callee instead of the caller.").BoolVar(&a.Reverse)
	app.Flag("include", "Only keep samples with a frame matching this regex.").StringVar(&a.rawInclude)
	app.Flag("exclude", "Drop samples with a frame matching this regex.").StringVar(&a.rawExclude)
	app.Flag("highlight", "Regex embedded in the HTML output for client-side highlighting.").StringVar(&a.Highlight)

	app.Flag("alloc", "Convert allocation samples instead of CPU samples.").BoolVar(&a.alloc)
	app.Flag("live", "Convert live-object samples instead of CPU samples.").BoolVar(&a.live)
	app.Flag("lock", "Convert contended-lock samples instead of CPU samples.").BoolVar(&a.lock)

	app.Flag("threads", "Split or aggregate by thread.").BoolVar(&a.Threads)
	stateRaw := ""
	app.Flag("state", "Comma-separated list of thread states to keep (ExecutionSample only).").StringVar(&stateRaw)
	app.Flag("classify", "Emit a category label/frame per sample.").BoolVar(&a.Classify)
	app.Flag("total", "Accumulate values instead of counting events.").BoolVar(&a.Total)
	app.Flag("lines", "Append :line to method names.").BoolVar(&a.Lines)
	app.Flag("bci", "Append @bci to method names.").BoolVar(&a.BCI)

	app.Flag("simple", "Strip class-name path prefixes.").BoolVar(&a.Simple)
	app.Flag("norm", "Normalize lambda/hidden-class name suffixes.").BoolVar(&a.Norm)
	app.Flag("dot", "Replace / with . in class names.").BoolVar(&a.Dot)

	fromRaw := app.Flag("from", "Time-window start: absolute epoch-ms, ms from start, or negative ms from end.").Int64()
	toRaw := app.Flag("to", "Time-window end: absolute epoch-ms, ms from start, or negative ms from end.").Int64()

	// A cumulative positional must be the last one, so inputs and the
	// optional output are bound together and split apart after parsing:
	// with more than one path, the last is the output file or directory.
	var paths []string
	app.Arg("paths", "Input file(s) (.jfr, .collapsed/.txt/.csv), then an optional output file or directory.").Required().StringsVar(&paths)

	if _, err := app.Parse(argv); err != nil {
		return nil, errors.Wrap(ErrInvalidArgument, err.Error())
	}
	a.Inputs = paths
	if len(paths) > 1 {
		a.Inputs = paths[:len(paths)-1]
		a.Output = paths[len(paths)-1]
	}

	if stateRaw != "" {
		a.State = lo.Uniq(strings.Split(stateRaw, ","))
	}
	if fromRaw != nil && *fromRaw != 0 {
		a.From = fromRaw
	}
	if toRaw != nil && *toRaw != 0 {
		a.To = toRaw
	}

	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Arguments) validate() error {
	n := 0
	for _, set := range []bool{a.alloc, a.live, a.lock} {
		if set {
			n++
		}
	}
	if n > 1 {
		return errors.Wrap(ErrInvalidArgument, "alloc, live, and lock are mutually exclusive")
	}
	switch {
	case a.alloc:
		a.Event = EventAlloc
	case a.live:
		a.Event = EventLive
	case a.lock:
		a.Event = EventLock
	default:
		a.Event = EventCPU
	}

	if a.rawInclude != "" {
		re, err := regexp.Compile(a.rawInclude)
		if err != nil {
			return errors.Wrap(ErrInvalidArgument, "include: "+err.Error())
		}
		a.Include = re
	}
	if a.rawExclude != "" {
		re, err := regexp.Compile(a.rawExclude)
		if err != nil {
			return errors.Wrap(ErrInvalidArgument, "exclude: "+err.Error())
		}
		a.Exclude = re
	}
	return nil
}

// Format identifies how an input/output path should be interpreted.
type Format int

const (
	FormatUnknown Format = iota
	FormatJFR
	FormatCollapsed
	FormatHTML
	FormatPprof
	FormatPprofGz
)

// DetectInputFormat classifies the input by file extension, falling
// back to sniffing the file's first four bytes against the JFR chunk
// magic when the extension is unrecognized.
func DetectInputFormat(path string, peek []byte) Format {
	switch ext := strings.ToLower(extOf(path)); ext {
	case "jfr":
		return FormatJFR
	case "collapsed", "txt", "csv":
		return FormatCollapsed
	}
	if len(peek) >= 4 && string(peek[:4]) == "FLR\x00" {
		return FormatJFR
	}
	return FormatUnknown
}

// DefaultOutputExt returns the extension a directory output should use
// for a converted file, defaulting to html unless the output path
// itself names a recognized extension.
func DefaultOutputExt(outputPath string) string {
	ext := strings.ToLower(extOf(outputPath))
	switch ext {
	case "html", "collapsed", "pprof":
		return ext
	case "gz":
		if strings.HasSuffix(strings.ToLower(outputPath), ".pprof.gz") {
			return "pprof.gz"
		}
	}
	return "html"
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 || i == len(path)-1 {
		return ""
	}
	return path[i+1:]
}
