// Package trace reads memory-access events out of raw trace log lines.
//
// A trace line carries an event only when its second whitespace-separated
// token is one of the markers below and a third token follows:
//
//	<anything> source_memory: 0x7ffd1000 ...
//	<anything> destination_memory: 0x7ffd1040 ...
//
// Every other line shape is ignored.
package trace

import (
	"errors"
	"strings"
)

const (
	sourceMarker      = "source_memory:"
	destinationMarker = "destination_memory:"
)

// Kind tells a read (Source) apart from a write (Destination).
type Kind int

const (
	Source Kind = iota + 1
	Destination
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Destination:
		return "destination"
	default:
		return "unknown"
	}
}

var (
	// ErrNoEvent is returned for lines that do not carry a memory marker.
	ErrNoEvent = errors.New("trace: no memory event on line")
	// ErrBadAddress is returned when the marker is present but the address
	// token is not hexadecimal. The returned Event still carries its Kind.
	ErrBadAddress = errors.New("trace: malformed address")
)

// Event is a single memory access extracted from one line.
type Event struct {
	Kind Kind
	// Addr is the parsed address. It is zero when the parse failed.
	Addr uint64
	// AddrText is the address token exactly as it appeared in the line.
	AddrText string
}

// ParseLine extracts the memory event on line, if any.
func ParseLine(line string) (Event, error) {
	tok := strings.Fields(line)
	if len(tok) < 3 {
		return Event{}, ErrNoEvent
	}
	var ev Event
	switch tok[1] {
	case sourceMarker:
		ev.Kind = Source
	case destinationMarker:
		ev.Kind = Destination
	default:
		return Event{}, ErrNoEvent
	}
	ev.AddrText = tok[2]
	addr, ok := ParseHex(tok[2])
	if !ok {
		return ev, ErrBadAddress
	}
	ev.Addr = addr
	return ev, nil
}

// ParseHex reads s as an unsigned 64-bit hexadecimal number. An optional
// 0x/0X prefix is accepted and reading stops at the first non-hex byte, so
// "0x1000," reads as 0x1000. At least one digit is required; a bare "0x"
// reads as zero. Overflow reports false.
func ParseHex(s string) (uint64, bool) {
	digits := s
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		digits = s[2:]
		if len(digits) == 0 || hexVal(digits[0]) < 0 {
			// "0x" with nothing usable after it: only the leading zero counts.
			return 0, true
		}
	}
	var v uint64
	n := 0
	for ; n < len(digits); n++ {
		d := hexVal(digits[n])
		if d < 0 {
			break
		}
		if v>>60 != 0 {
			return 0, false
		}
		v = v<<4 | uint64(d)
	}
	if n == 0 {
		return 0, false
	}
	return v, true
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}
