package report

import (
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"memconflict/internal/match"
)

const (
	MatchHeader     = "SourceFile,SourceAddress,DestinationFiles\n"
	BreakdownHeader = "File,MatchesWithSelf,MatchesWithoutSelf,TotalSources,TotalDestinations\n"

	defaultOutSuffix = "_source_dest_block_matches.csv"
	breakdownSuffix  = "_breakdown"
)

// MatchWriter renders records as rows of the primary CSV. Fields are written
// verbatim: the third column keeps its leading space and owners are
// space-joined, which encoding/csv would quote.
type MatchWriter struct {
	w   io.Writer
	buf []byte
}

// NewMatchWriter writes the header and returns a match.Sink for rows.
func NewMatchWriter(w io.Writer) (*MatchWriter, error) {
	if _, err := io.WriteString(w, MatchHeader); err != nil {
		return nil, err
	}
	return &MatchWriter{w: w}, nil
}

// Emit implements match.Sink.
func (m *MatchWriter) Emit(r match.Record) error {
	b := m.buf[:0]
	b = append(b, r.SourceFile...)
	b = append(b, ',')
	b = append(b, r.SourceAddress...)
	b = append(b, ',', ' ')
	for i, o := range r.Owners {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, o...)
	}
	b = append(b, '\n')
	m.buf = b
	_, err := m.w.Write(b)
	return err
}

// WriteBreakdown writes the breakdown CSV.
func WriteBreakdown(w io.Writer, rows []match.BreakdownRow) error {
	if _, err := io.WriteString(w, BreakdownHeader); err != nil {
		return err
	}
	var sb strings.Builder
	for _, r := range rows {
		sb.Reset()
		sb.WriteString(r.File)
		for _, n := range []int{r.WithSelf, r.WithoutSelf, r.Sources, r.Destinations} {
			sb.WriteByte(',')
			sb.WriteString(strconv.Itoa(n))
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// DefaultOutName derives the primary output name from the first input: the
// basename up to its first underscore, plus a fixed suffix.
func DefaultOutName(firstInput string) string {
	base := filepath.Base(firstInput)
	if i := strings.IndexByte(base, '_'); i >= 0 {
		base = base[:i]
	}
	return base + defaultOutSuffix
}

// BreakdownName inserts "_breakdown" before out's extension, keeping its
// directory. A leading dot is part of the stem, not an extension.
func BreakdownName(out string) string {
	dir, base := filepath.Split(out)
	ext := filepath.Ext(base)
	if ext == base {
		ext = ""
	}
	stem := strings.TrimSuffix(base, ext)
	return dir + stem + breakdownSuffix + ext
}
