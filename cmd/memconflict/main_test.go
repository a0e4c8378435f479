package main

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"memconflict/internal/blocks"
)

func TestParseFlagsBasic(t *testing.T) {
	args := []string{"-s", "12", "--out", "res.csv", "-B", "a_1.log", "b.log"}
	cfg, err := parseFlags(args, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags error: %v", err)
	}
	if cfg.shift != 12 {
		t.Fatalf("shift got %d", cfg.shift)
	}
	if cfg.out != "res.csv" {
		t.Fatalf("out got %q", cfg.out)
	}
	if !cfg.breakdown {
		t.Fatalf("breakdown not set")
	}
	if !reflect.DeepEqual(cfg.inputs, []string{"a_1.log", "b.log"}) {
		t.Fatalf("inputs got %v", cfg.inputs)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags([]string{"traces/memc_t0.log"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.shift != blocks.DefaultShift || cfg.breakdown || cfg.logLevel != "off" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.out != "memc_source_dest_block_matches.csv" {
		t.Fatalf("default out %q", cfg.out)
	}
}

func TestParseFlagsInterleaved(t *testing.T) {
	cfg, err := parseFlags([]string{"a.log", "--shift", "0", "b.log", "--breakdown", "c.log"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.shift != 0 || !cfg.breakdown || len(cfg.inputs) != 3 || cfg.inputs[2] != "c.log" {
		t.Fatalf("got %+v", cfg)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want error
	}{
		{"no inputs", []string{"-s", "6"}, errNoInputs},
		{"shift range", []string{"-s", "64", "a.log"}, blocks.ErrShiftRange},
		{"negative shift", []string{"--shift", "-1", "a.log"}, blocks.ErrShiftRange},
		{"shift syntax", []string{"-s", "big", "a.log"}, blocks.ErrShiftSyntax},
		{"help", []string{"-h"}, flag.ErrHelp},
		{"long help", []string{"--help", "a.log"}, flag.ErrHelp},
		{"bad shift before help", []string{"-s", "99", "-h", "a.log"}, blocks.ErrShiftRange},
		{"double dash", []string{"a.log", "--", "b.log"}, errUnknownOption},
		{"single dash", []string{"-", "a.log"}, errUnknownOption},
	}
	for _, tc := range cases {
		if _, err := parseFlags(tc.args, io.Discard); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}
	if _, err := parseFlags([]string{"--bogus", "a.log"}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestParseFlagsDashAsValue(t *testing.T) {
	cfg, err := parseFlags([]string{"-o", "--", "a.log"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.out != "--" || len(cfg.inputs) != 1 {
		t.Fatalf("got %+v", cfg)
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	alpha := writeFile(t, dir, "alpha.log", "1 destination_memory: 0x1000\n2 destination_memory: 0x2000\n")
	beta := writeFile(t, dir, "beta.log", "1 source_memory: 0x1004\n2 source_memory: 0x1004\n3 destination_memory: 0x2010\n")
	gamma := writeFile(t, dir, "gamma.log", "1 source_memory: 0x2030\n")
	missing := filepath.Join(dir, "missing.log")
	out := filepath.Join(dir, "res.csv")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-o", out, "-B", alpha, beta, missing, gamma}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr=%s", code, stderr.String())
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "SourceFile,SourceAddress,DestinationFiles\n" +
		"beta.log,0x1004, alpha.log\n" +
		"gamma.log,0x2030, alpha.log beta.log\n"
	if string(got) != want {
		t.Fatalf("matches:\n%s\nwant:\n%s", got, want)
	}

	bd, err := os.ReadFile(filepath.Join(dir, "res_breakdown.csv"))
	if err != nil {
		t.Fatal(err)
	}
	wantBD := "File,MatchesWithSelf,MatchesWithoutSelf,TotalSources,TotalDestinations\n" +
		"alpha.log,0,0,0,2\n" +
		"beta.log,0,1,2,1\n" +
		"missing.log,0,0,0,0\n" +
		"gamma.log,0,1,1,0\n"
	if string(bd) != wantBD {
		t.Fatalf("breakdown:\n%s\nwant:\n%s", bd, wantBD)
	}
	if n := strings.Count(stderr.String(), "Warning: could not open "+missing+" (skipping)"); n != 1 {
		t.Fatalf("want one warning, stderr=%q", stderr.String())
	}
	if !strings.Contains(stdout.String(), "Done. Results: "+out) || !strings.Contains(stdout.String(), "Breakdown written to") {
		t.Fatalf("stdout=%q", stdout.String())
	}

	// A second run is byte-identical; --compare reports no differences.
	out2 := filepath.Join(dir, "res2.csv")
	stdout.Reset()
	if code := run([]string{"-o", out2, "--compare", out, alpha, beta, missing, gamma}, &stdout, io.Discard); code != 0 {
		t.Fatalf("second run exit %d", code)
	}
	if !strings.Contains(stdout.String(), "No differences from "+out) {
		t.Fatalf("compare stdout=%q", stdout.String())
	}
}

func TestRunCompareShowsPatch(t *testing.T) {
	dir := t.TempDir()
	w := writeFile(t, dir, "w.log", "1 destination_memory: 0x1000\n")
	r := writeFile(t, dir, "r.log", "1 source_memory: 0x1020\n")
	base := writeFile(t, dir, "base.csv", "SourceFile,SourceAddress,DestinationFiles\n")
	var stdout bytes.Buffer
	code := run([]string{"-o", filepath.Join(dir, "o.csv"), "--compare", base, w, r}, &stdout, io.Discard)
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout.String(), "+r.log,0x1020, w.log") || !strings.Contains(stdout.String(), "added=1") {
		t.Fatalf("stdout=%q", stdout.String())
	}
}

func TestRunExitCodes(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.log", "1 source_memory: 0x10\n")
	cases := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, 0},
		{"no inputs", nil, 1},
		{"bad shift", []string{"-s", "70", in}, 1},
		{"unknown flag", []string{"-x", in}, 1},
		{"unwritable out", []string{"-o", filepath.Join(dir, "nope", "o.csv"), in}, 1},
		{"ok shift zero", []string{"-s", "0", "-o", filepath.Join(dir, "o.csv"), in}, 0},
	}
	for _, tc := range cases {
		var stderr bytes.Buffer
		if got := run(tc.args, io.Discard, &stderr); got != tc.want {
			t.Fatalf("%s: exit %d want %d (stderr=%s)", tc.name, got, tc.want, stderr.String())
		}
	}
}

func TestRunUnwritableOutputNamesPath(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.log", "1 source_memory: 0x10\n")
	bad := filepath.Join(dir, "nope", "o.csv")
	var stderr bytes.Buffer
	if code := run([]string{"-o", bad, in}, io.Discard, &stderr); code != 1 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stderr.String(), "Error: cannot write "+bad) {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestRunUnwritableBreakdownNamesPath(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.log", "1 source_memory: 0x10\n")
	out := filepath.Join(dir, "res.csv")
	bdDir := filepath.Join(dir, "res_breakdown.csv")
	if err := os.Mkdir(bdDir, 0o755); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-B", "-o", out, in}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stderr.String(), "Error: cannot write "+bdDir) {
		t.Fatalf("stderr=%q", stderr.String())
	}
	if strings.Contains(stdout.String(), "Done.") {
		t.Fatalf("reported success: %q", stdout.String())
	}
}

func TestRunOutputThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	w := writeFile(t, dir, "w.log", "1 destination_memory: 0x1000\n")
	r := writeFile(t, dir, "r.log", "1 source_memory: 0x1000\n")
	target := writeFile(t, dir, "target.csv", "old\n")
	link := filepath.Join(dir, "link.csv")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if code := run([]string{"-o", link, w, r}, io.Discard, io.Discard); code != 0 {
		t.Fatalf("exit %d", code)
	}
	fi, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("symlink replaced by a regular file")
	}
	got, _ := os.ReadFile(target)
	want := "SourceFile,SourceAddress,DestinationFiles\nr.log,0x1000, w.log\n"
	if string(got) != want {
		t.Fatalf("target got %q", got)
	}
}

func TestRunDirectoryInputSkipped(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.log", "1 source_memory: 0x10\n")
	sub := filepath.Join(dir, "traces")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	var stderr bytes.Buffer
	if code := run([]string{"-o", filepath.Join(dir, "o.csv"), sub, in}, io.Discard, &stderr); code != 0 {
		t.Fatalf("exit %d", code)
	}
	if strings.Count(stderr.String(), "Warning: could not open "+sub+" (skipping)") != 1 || strings.Contains(stderr.String(), "partial") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}
