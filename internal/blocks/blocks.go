// Package blocks quantizes raw addresses into power-of-two sized blocks.
//
// A block is identified by its base address: the address with its low
// shift bits cleared. Shift 0 is exact-address matching.
package blocks

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxShift is the largest accepted shift; 1<<64 does not fit in a uint64.
const MaxShift = 63

// DefaultShift gives 64-byte (cache line) blocks.
const DefaultShift Shift = 6

var (
	ErrShiftRange  = errors.New("shift size must be in [0,63]")
	ErrShiftSyntax = errors.New("invalid shift size")
)

// Shift is a validated block shift (log2 of the block size in bytes).
type Shift uint8

// NewShift validates n against [0, MaxShift].
func NewShift(n int) (Shift, error) {
	if n < 0 || n > MaxShift {
		return 0, fmt.Errorf("%w: got %d", ErrShiftRange, n)
	}
	return Shift(n), nil
}

// ParseShift parses a decimal shift argument and validates its range.
func ParseShift(s string) (Shift, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrShiftSyntax, s)
	}
	return NewShift(n)
}

// Size returns the block size in bytes.
func (s Shift) Size() uint64 { return 1 << s }

func (s Shift) String() string { return strconv.Itoa(int(s)) }

// Quantize returns the base address of the block containing addr.
func Quantize(addr uint64, s Shift) uint64 {
	if s == 0 {
		return addr
	}
	return (addr >> s) << s
}
