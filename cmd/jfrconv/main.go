// Command jfrconv converts JFR recordings (or already-collapsed stack
// listings) into interactive HTML flame graphs, collapsed-stack text
// dumps, or pprof v1 profiles.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/common/version"

	"github.com/omribahumi/async-profiler/internal/args"
	"github.com/omribahumi/async-profiler/internal/convert"
)

const appName = "jfrconv"

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.AllowInfo())

	a, err := args.Parse(appName, version.Print(appName), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, args.ErrInvalidArgument) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	if err := run(a, logger); err != nil {
		level.Error(logger).Log("msg", "conversion failed", "err", err)
		os.Exit(1)
	}
}

func run(a *args.Arguments, logger log.Logger) error {
	ext := args.DefaultOutputExt(a.Output)
	for _, input := range a.Inputs {
		if err := convertOne(a, input, ext, logger); err != nil {
			return errors.Wrapf(err, "convert %s", input)
		}
	}
	return nil
}

func convertOne(a *args.Arguments, input, ext string, logger log.Logger) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return errors.Wrap(err, "read input")
	}
	var peek []byte
	if len(data) >= 4 {
		peek = data[:4]
	}
	format := args.DetectInputFormat(input, peek)

	outPath := outputPathFor(a.Output, input, ext)
	level.Debug(logger).Log("msg", "converting", "input", input, "output", outPath, "format", ext)

	switch ext {
	case "pprof", "pprof.gz":
		if format != args.FormatJFR {
			return errors.New("pprof output requires a JFR input")
		}
		out, err := convert.ConvertJFRToPprof(data, a, ext == "pprof.gz")
		if err != nil {
			return err
		}
		return os.WriteFile(outPath, out, 0o644)

	case "collapsed":
		if format != args.FormatJFR {
			return errors.New("collapsed output requires a JFR input")
		}
		f, err := os.Create(outPath)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		defer f.Close()
		sink := convert.NewCollapsedStacks(f)
		if err := convert.ConvertJFR(data, a, sink); err != nil {
			return err
		}
		return sink.Dump(f)

	default: // html
		sink := convert.NewFlameGraph(a)
		switch format {
		case args.FormatJFR:
			if err := convert.ConvertJFR(data, a, sink); err != nil {
				return err
			}
		case args.FormatCollapsed:
			if err := convert.LoadCollapsed(bytes.NewReader(data), sink); err != nil {
				return errors.Wrap(err, "load collapsed input")
			}
		default:
			return errors.New("unrecognized input format")
		}
		f, err := os.Create(outPath)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		defer f.Close()
		return sink.Dump(f)
	}
}

// outputPathFor computes the destination path: a directory output (or
// no output at all, defaulting to the current directory)
// names each converted file `<dir>/<basename>.<ext>`; anything else is
// used as the literal output path.
func outputPathFor(output, input, ext string) string {
	dir := output
	if dir == "" {
		dir = "."
	}
	if !isDir(dir) {
		return output
	}
	base := filepath.Base(input)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return filepath.Join(dir, base+"."+ext)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
