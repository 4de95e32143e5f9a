package nezvm

import (
	"strings"
)

// Charset is a bitmap with one bit for each possible byte value.  The
// CHARMAP family of instructions use `Has` to test the byte under the
// cursor in a single operation.
//
// Charsets are built while a program is loaded and are only read
// afterwards, so they can be shared between parses.
type Charset struct {
	bits [8]uint32
}

func NewCharset(members ...byte) *Charset {
	cs := &Charset{}
	for _, b := range members {
		cs.Add(b)
	}
	return cs
}

func NewCharsetRange(lo, hi byte) *Charset {
	cs := &Charset{}
	cs.AddRange(lo, hi)
	return cs
}

// writing `b/32` as `b>>5` and `b%32` as `b&31` because division is
// usually slower than bit shifting operators.
func charsetIndex(b byte) (int, uint32) {
	return int(b >> 5), uint32(1) << (b & 31)
}

func (cs *Charset) Add(b byte) {
	i, mask := charsetIndex(b)
	cs.bits[i] |= mask
}

func (cs *Charset) AddRange(lo, hi byte) {
	for c := int(lo); c <= int(hi); c++ {
		cs.Add(byte(c))
	}
}

func (cs *Charset) Has(b byte) bool {
	i, mask := charsetIndex(b)
	return cs.bits[i]&mask != 0
}

// Members returns the bytes within the set in ascending order
func (cs *Charset) Members() []byte {
	var out []byte
	for c := 0; c < 256; c++ {
		if cs.Has(byte(c)) {
			out = append(out, byte(c))
		}
	}
	return out
}

func (cs *Charset) Len() int {
	n := 0
	for c := 0; c < 256; c++ {
		if cs.Has(byte(c)) {
			n++
		}
	}
	return n
}

func (cs *Charset) Equal(o *Charset) bool {
	return cs.bits == o.bits
}

func (cs *Charset) String() string {
	var (
		s  strings.Builder
		rg bool
		st int
		pr int
	)
	s.WriteString("[")

	for c := 0; c < 256; c++ {
		if cs.Has(byte(c)) {
			if !rg {
				rg = true
				st = c
			}
			pr = c
		} else if rg {
			rg = false
			addRange(&s, byte(st), byte(pr))
		}
	}
	if rg {
		addRange(&s, byte(st), byte(pr))
	}

	s.WriteString("]")
	return s.String()
}

func addRange(s *strings.Builder, start, end byte) {
	if start == end {
		s.WriteString(escapeClassByte(start))
	} else if end == start+1 {
		s.WriteString(escapeClassByte(start))
		s.WriteString(escapeClassByte(end))
	} else {
		s.WriteString(escapeClassByte(start))
		s.WriteString("-")
		s.WriteString(escapeClassByte(end))
	}
}

func escapeClassByte(b byte) string {
	switch b {
	case '-', ']', '[', '^', '\\':
		return `\` + string(rune(b))
	}
	return escapeByte(b)
}
