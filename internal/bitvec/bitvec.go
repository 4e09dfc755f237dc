package bitvec

import (
	"strings"
)

const wordBits = 64

// Vector is a fixed-width bit string stored in little-endian 64-bit words.
type Vector struct {
	words []uint64
	width int
}

func wordsFor(width int) int {
	return (width + wordBits - 1) / wordBits
}

// New returns an all-zero vector of the given width.
func New(width int) Vector {
	if width < 0 {
		width = 0
	}
	return Vector{width: width, words: make([]uint64, wordsFor(width))}
}

// FromUint64 returns a vector holding v truncated to width bits.
func FromUint64(width int, v uint64) Vector {
	out := New(width)
	if len(out.words) > 0 {
		out.words[0] = v
	}
	out.mask()
	return out
}

// FromWords returns a vector built from little-endian words truncated to width bits.
func FromWords(width int, words ...uint64) Vector {
	out := New(width)
	copy(out.words, words)
	out.mask()
	return out
}

// Ones returns a vector with every bit set.
func Ones(width int) Vector {
	out := New(width)
	for i := range out.words {
		out.words[i] = ^uint64(0)
	}
	out.mask()
	return out
}

// Width returns the number of bits in the vector.
func (v Vector) Width() int {
	return v.width
}

// Uint64 returns the low 64 bits.
func (v Vector) Uint64() uint64 {
	if len(v.words) == 0 {
		return 0
	}
	return v.words[0]
}

// Words returns a copy of the backing words.
func (v Vector) Words() []uint64 {
	out := make([]uint64, len(v.words))
	copy(out, v.words)
	return out
}

// Bit reports whether bit i is set. Out of range bits read as zero.
func (v Vector) Bit(i int) bool {
	if i < 0 || i >= v.width {
		return false
	}
	return v.words[i/wordBits]>>(uint(i)%wordBits)&1 == 1
}

// IsZero reports whether no bit is set.
func (v Vector) IsZero() bool {
	for _, w := range v.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether both vectors have the same width and bits.
func (v Vector) Equal(o Vector) bool {
	if v.width != o.width {
		return false
	}
	for i := range v.words {
		if v.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// Slice returns width bits starting at bit lo.
// Bits past the end of v read as zero.
func (v Vector) Slice(lo, width int) Vector {
	out := New(width)
	if lo < 0 {
		return out
	}
	for j := range out.words {
		out.words[j] = v.bitsAt(lo + j*wordBits)
	}
	out.mask()
	return out
}

// Insert returns a copy of v with x written at bit lo.
// Bits of x that fall past the width of v are discarded.
func (v Vector) Insert(lo int, x Vector) Vector {
	out := v.clone()
	if lo < 0 || lo >= v.width {
		return out
	}
	for j, w := range x.words {
		n := min(wordBits, x.width-j*wordBits)
		out.setBits(lo+j*wordBits, n, w)
	}
	out.mask()
	return out
}

// Resize truncates or zero-extends v to width bits.
func (v Vector) Resize(width int) Vector {
	if width == v.width {
		return v
	}
	return v.Slice(0, width)
}

// Concat joins parts with parts[0] in the least significant position.
func Concat(parts ...Vector) Vector {
	total := 0
	for _, p := range parts {
		total += p.width
	}
	out := New(total)
	off := 0
	for _, p := range parts {
		out = out.Insert(off, p)
		off += p.width
	}
	return out
}

// String formats the vector as zero-padded hexadecimal.
func (v Vector) String() string {
	digits := max(1, (v.width+3)/4)
	var b strings.Builder
	b.Grow(digits + 2)
	b.WriteString("0x")
	for d := digits - 1; d >= 0; d-- {
		nibble := v.Slice(d*4, 4).Uint64()
		b.WriteByte("0123456789abcdef"[nibble])
	}
	return b.String()
}

func (v Vector) clone() Vector {
	out := Vector{width: v.width, words: make([]uint64, len(v.words))}
	copy(out.words, v.words)
	return out
}

// bitsAt returns the 64 bits starting at pos.
func (v Vector) bitsAt(pos int) uint64 {
	idx, off := pos/wordBits, uint(pos%wordBits)
	var r uint64
	if idx < len(v.words) {
		r = v.words[idx] >> off
	}
	if off != 0 && idx+1 < len(v.words) {
		r |= v.words[idx+1] << (wordBits - off)
	}
	return r
}

// setBits writes the low n bits of val at pos.
func (v *Vector) setBits(pos, n int, val uint64) {
	if n <= 0 {
		return
	}
	m := ^uint64(0)
	if n < wordBits {
		m = (uint64(1) << uint(n)) - 1
	}
	val &= m
	idx, off := pos/wordBits, uint(pos%wordBits)
	if idx < len(v.words) {
		v.words[idx] = v.words[idx]&^(m<<off) | val<<off
	}
	if off != 0 && int(off)+n > wordBits && idx+1 < len(v.words) {
		hi := wordBits - off
		v.words[idx+1] = v.words[idx+1]&^(m>>hi) | val>>hi
	}
}

func (v *Vector) mask() {
	if len(v.words) == 0 {
		return
	}
	if r := uint(v.width % wordBits); r != 0 {
		v.words[len(v.words)-1] &= (uint64(1) << r) - 1
	}
}
