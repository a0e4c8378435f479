package trace

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
)

// maxLineBytes bounds a single trace line. A longer line stops the file with
// a read error; earlier lines are still delivered.
const maxLineBytes = 16 << 20

var gzipMagic = []byte{0x1f, 0x8b}

// ErrNotRegular is returned for inputs that are not regular files. Both
// passes must read identical content, which directories, pipes and devices
// cannot guarantee.
var ErrNotRegular = errors.New("not a regular file")

// Opener opens a trace file for one full sequential read.
type Opener func(path string) (io.ReadCloser, error)

// Open opens path for reading. Gzip-compressed traces (ChampSim style
// .gz dumps) are detected by their magic bytes and decompressed on the fly.
// Symlinks to regular files are followed; anything else is ErrNotRegular.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: %w", path, ErrNotRegular)
	}
	br := bufio.NewReader(f)
	head, _ := br.Peek(len(gzipMagic))
	if !bytes.Equal(head, gzipMagic) {
		return &readCloser{Reader: br, close: f.Close}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("gzip header %s: %w", path, err)
	}
	return &readCloser{Reader: zr, close: func() error {
		zerr := zr.Close()
		if err := f.Close(); err != nil {
			return err
		}
		return zerr
	}}, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }

// ScanLines calls fn for every line in r, in order. It returns the number of
// lines read and the first read error, if any; lines seen before the error
// have already been delivered.
func ScanLines(r io.Reader, fn func(line string)) (int, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for s.Scan() {
		n++
		fn(s.Text())
	}
	return n, s.Err()
}
