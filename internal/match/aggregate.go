package match

import (
	"fmt"
	"path/filepath"
	"strings"

	"memconflict/internal/blocks"
	"memconflict/internal/sortutil"
	"memconflict/internal/trace"
)

// Record is one emitted conflict: a source read whose block was written by
// Owners. Owners is sorted ascending and never equals [SourceFile] alone.
type Record struct {
	SourceFile    string
	SourceAddress string // address token as it appeared in the trace
	Owners        []string
	Self          bool // SourceFile is one of Owners
}

// Sink receives records in emission order.
type Sink interface {
	Emit(Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Record) error

func (f SinkFunc) Emit(r Record) error { return f(r) }

type recordKey struct {
	file, addr, owners string
}

// Aggregator runs phase two against a finished Index.
type Aggregator struct {
	env      Env
	ix       *Index
	emitted  map[recordKey]struct{}
	counters map[string]*Counters
	rows     int
}

// NewAggregator prepares phase two. ix must be fully built.
func NewAggregator(env Env, ix *Index) *Aggregator {
	return &Aggregator{
		env:      env,
		ix:       ix,
		emitted:  make(map[recordKey]struct{}),
		counters: make(map[string]*Counters),
	}
}

// Run re-reads paths in order and sends each new match to sink. A sink
// error aborts the run; unreadable inputs are warned about and skipped.
func (a *Aggregator) Run(paths []string, sink Sink) error {
	tm := a.env.Log.Start("match", "scanning source events")
	for _, p := range paths {
		if err := a.scanFile(p, sink); err != nil {
			return err
		}
	}
	tm.Finish("matching complete", int64(a.rows), map[string]string{
		"files": fmt.Sprint(len(paths)),
	})
	return nil
}

// Rows is the number of records emitted so far.
func (a *Aggregator) Rows() int { return a.rows }

// Counters returns the tallies for a basename, zero if never seen.
func (a *Aggregator) Counters(base string) Counters {
	c := Counters{Destinations: a.ix.Destinations(base)}
	if got, ok := a.counters[base]; ok {
		c.Sources = got.Sources
		c.WithSelf = got.WithSelf
		c.WithoutSelf = got.WithoutSelf
	}
	return c
}

func (a *Aggregator) counter(base string) *Counters {
	c, ok := a.counters[base]
	if !ok {
		c = &Counters{}
		a.counters[base] = c
	}
	return c
}

func (a *Aggregator) scanFile(path string, sink Sink) error {
	rc, oerr := a.env.opener()(path)
	if oerr != nil {
		if _, reported := a.ix.failed[path]; !reported {
			a.env.warn("match", path, oerr)
		}
		return nil
	}
	defer rc.Close()

	base := filepath.Base(path)
	c := a.counter(base)
	var serr error
	_, rerr := trace.ScanLines(rc, func(line string) {
		if serr != nil {
			return
		}
		ev, perr := trace.ParseLine(line)
		if ev.Kind != trace.Source {
			return
		}
		c.Sources++
		if perr != nil {
			return
		}
		if rec, ok := a.lookup(base, ev); ok {
			if serr = sink.Emit(rec); serr != nil {
				return
			}
			a.rows++
			if rec.Self {
				c.WithSelf++
			} else {
				c.WithoutSelf++
			}
		}
	})
	if serr != nil {
		return serr
	}
	if rerr != nil {
		a.env.warn("match", path, fmt.Errorf("%w %s: %v", ErrRead, path, rerr))
	}
	return nil
}

// lookup applies the emission and dedup rules to one source event.
func (a *Aggregator) lookup(base string, ev trace.Event) (Record, bool) {
	set := a.ix.Owners(blocks.Quantize(ev.Addr, a.ix.shift))
	if len(set) == 0 {
		return Record{}, false
	}
	owners := sortutil.SortedNames(set)
	self := sortutil.ContainsSorted(owners, base)
	if self && len(owners) == 1 {
		return Record{}, false
	}
	key := recordKey{file: base, addr: ev.AddrText, owners: strings.Join(owners, " ")}
	if _, dup := a.emitted[key]; dup {
		return Record{}, false
	}
	a.emitted[key] = struct{}{}
	return Record{SourceFile: base, SourceAddress: ev.AddrText, Owners: owners, Self: self}, true
}
