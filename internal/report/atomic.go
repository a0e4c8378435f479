// Package report writes match results as CSV.
//
// Regular output files are written atomically: rows go into a temporary file
// next to the (symlink-resolved) destination, which is renamed over it on
// Commit, so readers never observe a partially written report.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSink wraps every failure to create or publish an output file.
var ErrSink = errors.New("cannot write")

// File is an output file being written. Regular targets are written
// atomically; see Create for the cases that write through in place.
type File struct {
	path   string // path as given by the caller, used in messages
	target string // resolved destination
	tmp    string // empty when writing directly to target
	f      *os.File
	w      *bufio.Writer
	done   bool
}

// Create prepares path for writing. Symlinks are followed and the resolved
// file is replaced on Commit. Existing non-regular targets (devices, FIFOs)
// and targets whose directory does not allow a temporary sibling are opened
// and truncated directly instead.
func Create(path string) (*File, error) {
	target := resolveTarget(path)
	fi, statErr := os.Stat(target)
	if statErr == nil && !fi.Mode().IsRegular() {
		return createDirect(path, target)
	}
	tmp, f, err := createTempFile(filepath.Dir(target), filepath.Base(target))
	if err != nil {
		// Read-only directory holding a writable file: write through it.
		if d, derr := createDirect(path, target); derr == nil {
			return d, nil
		}
		return nil, fmt.Errorf("%w %s: %v", ErrSink, path, err)
	}
	mode := os.FileMode(0o644)
	if statErr == nil {
		mode = fi.Mode().Perm()
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("%w %s: %v", ErrSink, path, err)
	}
	return &File{path: path, target: target, tmp: tmp, f: f, w: bufio.NewWriter(f)}, nil
}

// resolveTarget follows symlinks in path. A dangling link resolves to the
// path it points at, so the write creates the link's target.
func resolveTarget(path string) string {
	if r, err := filepath.EvalSymlinks(path); err == nil {
		return r
	}
	link, err := os.Readlink(path)
	if err != nil {
		return path
	}
	if !filepath.IsAbs(link) {
		link = filepath.Join(filepath.Dir(path), link)
	}
	return link
}

func createDirect(path, target string) (*File, error) {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrSink, path, err)
	}
	return &File{path: path, target: target, f: f, w: bufio.NewWriter(f)}, nil
}

// Path is the destination path as given to Create.
func (o *File) Path() string { return o.path }

func (o *File) Write(p []byte) (int, error) { return o.w.Write(p) }

func (o *File) WriteString(s string) (int, error) { return o.w.WriteString(s) }

// Commit flushes the data and, for atomic writes, syncs and renames the
// temporary file over the target.
func (o *File) Commit() error {
	if o.done {
		return nil
	}
	o.done = true
	if err := o.w.Flush(); err != nil {
		return o.fail(err)
	}
	if o.tmp == "" {
		if err := o.f.Close(); err != nil {
			return fmt.Errorf("%w %s: %v", ErrSink, o.path, err)
		}
		return nil
	}
	if err := o.f.Sync(); err != nil {
		return o.fail(err)
	}
	if err := o.f.Close(); err != nil {
		_ = os.Remove(o.tmp)
		return fmt.Errorf("%w %s: %v", ErrSink, o.path, err)
	}
	if err := os.Rename(o.tmp, o.target); err != nil {
		_ = os.Remove(o.tmp)
		return fmt.Errorf("%w %s: %v", ErrSink, o.path, err)
	}
	return nil
}

// Abort discards the temporary file. A direct write is closed as is.
// It is a no-op after Commit.
func (o *File) Abort() {
	if o.done {
		return
	}
	o.done = true
	_ = o.f.Close()
	if o.tmp != "" {
		_ = os.Remove(o.tmp)
	}
}

func (o *File) fail(err error) error {
	_ = o.f.Close()
	if o.tmp != "" {
		_ = os.Remove(o.tmp)
	}
	return fmt.Errorf("%w %s: %v", ErrSink, o.path, err)
}

// createTempFile creates ".tmp-<base>-*" in dir so it sits next to its target.
func createTempFile(dir, base string) (string, *os.File, error) {
	f, err := os.CreateTemp(dir, ".tmp-"+base+"-")
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}
