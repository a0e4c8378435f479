// Package diff compares a baseline match report with a freshly written one.
// It uses github.com/pmezard/go-difflib/difflib to produce classic unified
// patches (---/+++ headers, @@ hunks, lines prefixed with ' ', '-', '+').
package diff

import (
	"bytes"
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// Options controls patch generation behavior.
type Options struct {
	// MaxBytes is a guardrail on input size (old+new). When exceeded,
	// a placeholder patch is returned and oversize=true.
	// 0 means "no limit".
	MaxBytes int

	// Context is the number of context lines in unified hunks.
	// If 0, default to 3.
	Context int
}

// Result describes the outcome of a comparison.
type Result struct {
	Patch    string
	Same     bool
	Oversize bool
	Added    int // rows only in the new report
	Removed  int // rows only in the baseline
}

// Reports diffs baseline (a) against the current report (b).
func Reports(aName, bName string, a, b []byte, opt Options) (Result, error) {
	if bytes.Equal(a, b) {
		return Result{Same: true}, nil
	}
	if opt.MaxBytes > 0 && len(a)+len(b) > opt.MaxBytes {
		return Result{Patch: omitted(aName, bName), Oversize: true}, nil
	}
	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return Result{}, fmt.Errorf("diff %s %s: %w", aName, bName, err)
	}
	res := Result{Patch: s}
	res.Added, res.Removed = countChanges(s)
	return res, nil
}

// splitLinesKeepNL splits into lines and keeps newline characters,
// which produces better unified hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}

// countChanges counts +/- body lines. Only the leading ---/+++ file header
// is skipped; rows that themselves start with "--" or "++" still count.
func countChanges(patch string) (added, removed int) {
	lines := strings.Split(patch, "\n")
	if len(lines) >= 2 && strings.HasPrefix(lines[0], "--- ") && strings.HasPrefix(lines[1], "+++ ") {
		lines = lines[2:]
	}
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "+"):
			added++
		case strings.HasPrefix(l, "-"):
			removed++
		}
	}
	return added, removed
}

// omitted returns a compact placeholder when size limits are exceeded.
func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
