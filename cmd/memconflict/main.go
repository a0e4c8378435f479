// Package main provides the memconflict CLI. It correlates memory-access
// trace logs and reports address blocks written (destination_memory:) by one
// file and read (source_memory:) by another.
//
// Usage:
//
//	memconflict [options] <file1> <file2> ...
//
// Matching runs in two passes over the input list: the first collects which
// files write each block, the second rescans source reads against that
// finished index. Output is deterministic for identical inputs and flags.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"memconflict/internal/blocks"
	"memconflict/internal/diag"
	"memconflict/internal/diff"
	"memconflict/internal/match"
	"memconflict/internal/report"
	"memconflict/internal/trace"
)

// Config is the parsed command line.
type Config struct {
	shift     blocks.Shift
	out       string
	breakdown bool
	compare   string
	logLevel  string
	inputs    []string
}

var (
	errNoInputs      = errors.New("at least one input file is required")
	errUnknownOption = errors.New("unknown option")
)

// valueFlags take the next argument as their value.
var valueFlags = map[string]bool{"s": true, "shift": true, "o": true, "out": true, "compare": true, "log-level": true}

func usage(w io.Writer, prog string) func() {
	return func() {
		fmt.Fprintf(w, "Usage: %s [options] <file1> <file2> ...\n", prog)
		fmt.Fprintln(w, "Options:")
		fmt.Fprintln(w, "  -s, --shift <bits>   Cache-line shift (default 6 => 64-byte blocks)")
		fmt.Fprintln(w, "  -o, --out   <file>   Output CSV filename (default <prefix>_source_dest_block_matches.csv)")
		fmt.Fprintln(w, "  -B, --breakdown      Also write per-file breakdown to <out>_breakdown")
		fmt.Fprintln(w, "      --compare <csv>  Print a unified diff of a baseline CSV against the new output")
		fmt.Fprintln(w, "      --log-level <l>  JSON diagnostics on stderr: debug, info, warn, error, off (default off)")
		fmt.Fprintln(w, "  -h, --help           Show this help and exit")
	}
}

// parseFlags parses args (without the program name). Flags and input paths
// may be interleaved. flag.ErrHelp is returned for -h/--help.
func parseFlags(args []string, stderr io.Writer) (Config, error) {
	cfg := Config{shift: blocks.DefaultShift}
	fs := flag.NewFlagSet("memconflict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = usage(stderr, fs.Name())

	if err := rejectBareDashes(args); err != nil {
		fs.Usage()
		return Config{}, err
	}

	// The shift is validated as soon as it is seen, so a bad value wins over
	// a later -h.
	var shiftErr error
	setShift := func(v string) error {
		s, err := blocks.ParseShift(v)
		if err != nil {
			shiftErr = err
			return err
		}
		cfg.shift = s
		return nil
	}
	fs.Func("s", "block shift in bits (default 6)", setShift)
	fs.Func("shift", "block shift in bits (default 6)", setShift)
	fs.StringVar(&cfg.out, "o", "", "output CSV path")
	fs.StringVar(&cfg.out, "out", "", "output CSV path")
	fs.BoolVar(&cfg.breakdown, "B", false, "also write per-file breakdown")
	fs.BoolVar(&cfg.breakdown, "breakdown", false, "also write per-file breakdown")
	fs.StringVar(&cfg.compare, "compare", "", "baseline CSV to diff against")
	fs.StringVar(&cfg.logLevel, "log-level", "off", "diagnostics level")

	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			if shiftErr != nil {
				return Config{}, shiftErr
			}
			return Config{}, err
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		cfg.inputs = append(cfg.inputs, rest[0])
		rest = rest[1:]
	}

	if len(cfg.inputs) == 0 {
		fs.Usage()
		return Config{}, errNoInputs
	}
	if cfg.out == "" {
		cfg.out = report.DefaultOutName(cfg.inputs[0])
	}
	return cfg, nil
}

// rejectBareDashes treats "-" and "--" as unknown options unless they are
// the value of a preceding flag.
func rejectBareDashes(args []string) error {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "-" || a == "--" {
			return fmt.Errorf("%w: %s", errUnknownOption, a)
		}
		name := strings.TrimLeft(a, "-")
		if len(name) < len(a) && !strings.Contains(name, "=") && valueFlags[name] {
			i++
		}
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	logger := diag.NewLogger(stderr, cfg.logLevel)
	fail := func(err error) int {
		logger.Error("cli", err.Error(), nil)
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	env := match.Env{
		Shift: cfg.shift,
		Open:  trace.Open,
		Log:   logger,
		Warn: func(path string, err error) {
			if errors.Is(err, match.ErrRead) {
				fmt.Fprintf(stderr, "Warning: %v (partial input used)\n", err)
				return
			}
			fmt.Fprintf(stderr, "Warning: could not open %s (skipping)\n", path)
		},
	}

	// ----- Pass 1: destination owners ---------------------------------------
	ix := match.BuildIndex(env, cfg.inputs)

	// ----- Pass 2: source matches → primary CSV -----------------------------
	out, err := report.Create(cfg.out)
	if err != nil {
		return fail(err)
	}
	mw, err := report.NewMatchWriter(out)
	if err != nil {
		out.Abort()
		return fail(fmt.Errorf("%w %s: %v", report.ErrSink, cfg.out, err))
	}
	agg := match.NewAggregator(env, ix)
	if err := agg.Run(cfg.inputs, mw); err != nil {
		out.Abort()
		return fail(fmt.Errorf("%w %s: %v", report.ErrSink, cfg.out, err))
	}
	if err := out.Commit(); err != nil {
		return fail(err)
	}

	// ----- Optional breakdown -----------------------------------------------
	if cfg.breakdown {
		name := report.BreakdownName(cfg.out)
		if err := writeBreakdown(name, agg.Breakdown(cfg.inputs)); err != nil {
			return fail(err)
		}
		fmt.Fprintf(stdout, "Breakdown written to %s\n", name)
	}

	// ----- Optional baseline comparison -------------------------------------
	if cfg.compare != "" {
		if err := compareBaseline(stdout, cfg.compare, cfg.out); err != nil {
			return fail(err)
		}
	}

	fmt.Fprintf(stdout, "Done. Results: %s\n", cfg.out)
	return 0
}

func writeBreakdown(name string, rows []match.BreakdownRow) error {
	f, err := report.Create(name)
	if err != nil {
		return err
	}
	if err := report.WriteBreakdown(f, rows); err != nil {
		f.Abort()
		return fmt.Errorf("%w %s: %v", report.ErrSink, name, err)
	}
	return f.Commit()
}

func compareBaseline(stdout io.Writer, baseline, current string) error {
	a, err := os.ReadFile(baseline)
	if err != nil {
		return fmt.Errorf("reading baseline: %w", err)
	}
	b, err := os.ReadFile(current)
	if err != nil {
		return fmt.Errorf("reading results: %w", err)
	}
	res, err := diff.Reports(baseline, current, a, b, diff.Options{MaxBytes: 64 << 20})
	if err != nil {
		return err
	}
	if res.Same {
		fmt.Fprintf(stdout, "No differences from %s\n", baseline)
		return nil
	}
	fmt.Fprint(stdout, res.Patch)
	fmt.Fprintf(stdout, "Compared with %s (added=%d, removed=%d, oversize=%v)\n", baseline, res.Added, res.Removed, res.Oversize)
	return nil
}
