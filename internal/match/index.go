// Package match correlates destination writes and source reads across trace
// files at block granularity.
//
// Matching runs in two strict phases over the same ordered file list:
//
//   - BuildIndex reads every file once and records, per block, which files
//     wrote it (destination events).
//   - Aggregator.Run reads every file again, looks each source event's block
//     up in the finished index, and emits deduplicated MatchRecords.
//
// Files are identified by basename. Two paths with the same final component
// are the same owner.
package match

import (
	"errors"
	"fmt"
	"path/filepath"

	"memconflict/internal/blocks"
	"memconflict/internal/diag"
	"memconflict/internal/trace"
)

// ErrRead marks an input that opened but failed part way through. Lines read
// before the failure have been used.
var ErrRead = errors.New("read failed")

// Counters are the per-file tallies reported by the breakdown.
type Counters struct {
	Sources      int // lines carrying the source marker
	Destinations int // valid destination events
	WithSelf     int // emitted rows whose owners include the file
	WithoutSelf  int // emitted rows whose owners exclude the file
}

// Env carries what both phases need to read input files.
type Env struct {
	Shift blocks.Shift
	Open  trace.Opener
	Log   *diag.Logger
	// Warn is called for each input that cannot be opened or read fully.
	Warn func(path string, err error)
}

func (e Env) opener() trace.Opener {
	if e.Open != nil {
		return e.Open
	}
	return trace.Open
}

func (e Env) warn(comp, path string, err error) {
	e.Log.Warn(comp, path, err.Error())
	if e.Warn != nil {
		e.Warn(path, err)
	}
}

// Index maps block → owner basenames. It is read-only once BuildIndex returns.
type Index struct {
	shift  blocks.Shift
	owners map[uint64]map[string]struct{}
	dests  map[string]int
	// failed holds paths that could not be opened or read during the build.
	failed map[string]struct{}
}

// Shift is the block shift the index was built with.
func (ix *Index) Shift() blocks.Shift { return ix.shift }

// Owners returns the set of basenames that wrote block, or nil.
// The returned map must not be modified.
func (ix *Index) Owners(block uint64) map[string]struct{} {
	return ix.owners[block]
}

// Blocks returns the number of distinct destination blocks.
func (ix *Index) Blocks() int { return len(ix.owners) }

// Destinations returns the destination event count for a basename.
func (ix *Index) Destinations(base string) int { return ix.dests[base] }

// BuildIndex runs phase one over paths, in order.
func BuildIndex(env Env, paths []string) *Index {
	ix := &Index{
		shift:  env.Shift,
		owners: make(map[uint64]map[string]struct{}),
		dests:  make(map[string]int),
		failed: make(map[string]struct{}),
	}
	tm := env.Log.Start("index", "collecting destination owners")
	for _, p := range paths {
		if err := ix.addFile(env, p); err != nil {
			ix.failed[p] = struct{}{}
			env.warn("index", p, err)
		}
	}
	tm.Finish("destination index built", int64(len(ix.owners)), map[string]string{
		"files": fmt.Sprint(len(paths)),
		"shift": env.Shift.String(),
	})
	return ix
}

// addFile scans one file. Events read before a mid-file read error are kept.
func (ix *Index) addFile(env Env, path string) error {
	rc, err := env.opener()(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	base := filepath.Base(path)
	seen := 0
	_, err = trace.ScanLines(rc, func(line string) {
		ev, perr := trace.ParseLine(line)
		if perr != nil || ev.Kind != trace.Destination {
			return
		}
		ix.insert(base, blocks.Quantize(ev.Addr, ix.shift))
		seen++
	})
	env.Log.DebugFile("index", path, "destination events", int64(seen))
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrRead, path, err)
	}
	return nil
}

func (ix *Index) insert(base string, block uint64) {
	set, ok := ix.owners[block]
	if !ok {
		set = make(map[string]struct{}, 1)
		ix.owners[block] = set
	}
	set[base] = struct{}{}
	ix.dests[base]++
}
