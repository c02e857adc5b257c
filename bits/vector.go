// Package bits provides the fixed-length bit buffer shared by the framer and
// the FEC decoders.
package bits

import (
	"errors"
	"fmt"
	mbits "math/bits"
	"strings"

	"golang.org/x/exp/constraints"
)

// ErrOutOfRange is returned for any index or range outside the vector.
var ErrOutOfRange = errors.New("bit index out of range")

// Vector is an ordered, fixed-length sequence of bits. Bit 0 is the first bit
// received over the air. Decoders record how many bits they flipped in the
// corrected counter.
type Vector struct {
	words     []uint64
	n         int
	corrected int
}

// New returns an all-zero vector of n bits.
func New(n int) *Vector {
	if n < 0 {
		n = 0
	}
	return &Vector{
		words: make([]uint64, (n+63)/64),
		n:     n,
	}
}

// FromBools builds a vector with one bit per element.
func FromBools(b []bool) *Vector {
	v := New(len(b))
	for i, x := range b {
		if x {
			v.set(i)
		}
	}
	return v
}

// FromBytes unpacks bytes MSB first.
func FromBytes(b []byte) *Vector {
	v := New(len(b) * 8)
	for i, by := range b {
		for j := 0; j < 8; j++ {
			if (by>>(7-j))&1 != 0 {
				v.set(i*8 + j)
			}
		}
	}
	return v
}

// FromUint returns a vector of width bits holding the low bits of val, MSB first.
func FromUint(val uint64, width int) *Vector {
	v := New(width)
	for i := 0; i < width && i < 64; i++ {
		if (val>>(width-1-i))&1 != 0 {
			v.set(i)
		}
	}
	return v
}

// Parse reads a string of '0' and '1' characters. Spaces and underscores are
// ignored so long vectors can be grouped for readability.
func Parse(s string) (*Vector, error) {
	var b []bool
	for i, c := range s {
		switch c {
		case '0':
			b = append(b, false)
		case '1':
			b = append(b, true)
		case ' ', '_':
		default:
			return nil, fmt.Errorf("invalid bit character %q at offset %d", c, i)
		}
	}
	return FromBools(b), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Vector {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Vector) Len() int {
	return v.n
}

func (v *Vector) Corrected() int {
	return v.corrected
}

// AddCorrected accumulates the number of bits a decoder flipped.
func (v *Vector) AddCorrected(n int) {
	v.corrected += n
}

func (v *Vector) check(i int) error {
	if i < 0 || i >= v.n {
		return fmt.Errorf("index %d, length %d: %w", i, v.n, ErrOutOfRange)
	}
	return nil
}

func (v *Vector) checkRange(start, end int) error {
	if start < 0 || end > v.n || start > end {
		return fmt.Errorf("range [%d,%d), length %d: %w", start, end, v.n, ErrOutOfRange)
	}
	return nil
}

func (v *Vector) set(i int) {
	v.words[i/64] |= 1 << (63 - uint(i%64))
}

func (v *Vector) clear(i int) {
	v.words[i/64] &^= 1 << (63 - uint(i%64))
}

// Bit returns bit i without a range error. It panics if i is out of range, so
// callers must have validated their indices.
func (v *Vector) Bit(i int) bool {
	if i < 0 || i >= v.n {
		panic(fmt.Sprintf("bits: index %d out of range [0,%d)", i, v.n))
	}
	return v.words[i/64]&(1<<(63-uint(i%64))) != 0
}

func (v *Vector) Get(i int) (bool, error) {
	if err := v.check(i); err != nil {
		return false, err
	}
	return v.Bit(i), nil
}

func (v *Vector) Set(i int, b bool) error {
	if err := v.check(i); err != nil {
		return err
	}
	if b {
		v.set(i)
	} else {
		v.clear(i)
	}
	return nil
}

func (v *Vector) Flip(i int) error {
	if err := v.check(i); err != nil {
		return err
	}
	v.words[i/64] ^= 1 << (63 - uint(i%64))
	return nil
}

// Slice returns a copy of bits [start, end). The result shares no storage with
// v and starts with a zero corrected count.
func (v *Vector) Slice(start, end int) (*Vector, error) {
	if err := v.checkRange(start, end); err != nil {
		return nil, err
	}
	out := New(end - start)
	for i := start; i < end; i++ {
		if v.Bit(i) {
			out.set(i - start)
		}
	}
	return out, nil
}

// Copy returns a deep copy, corrected count included.
func (v *Vector) Copy() *Vector {
	out := &Vector{
		words:     make([]uint64, len(v.words)),
		n:         v.n,
		corrected: v.corrected,
	}
	copy(out.words, v.words)
	return out
}

// Uint reads bits [start, end) as an unsigned integer, MSB first. At most 64
// bits can be read.
func (v *Vector) Uint(start, end int) (uint64, error) {
	if err := v.checkRange(start, end); err != nil {
		return 0, err
	}
	if end-start > 64 {
		return 0, fmt.Errorf("field width %d exceeds 64 bits: %w", end-start, ErrOutOfRange)
	}
	var r uint64
	for i := start; i < end; i++ {
		r <<= 1
		if v.Bit(i) {
			r |= 1
		}
	}
	return r, nil
}

// SetUint writes the low width bits of val at start, MSB first.
func (v *Vector) SetUint(start, width int, val uint64) error {
	if width > 64 {
		return fmt.Errorf("field width %d exceeds 64 bits: %w", width, ErrOutOfRange)
	}
	if err := v.checkRange(start, start+width); err != nil {
		return err
	}
	for i := 0; i < width; i++ {
		if (val>>(width-1-i))&1 != 0 {
			v.set(start + i)
		} else {
			v.clear(start + i)
		}
	}
	return nil
}

// Field reads a width-bit field starting at start into T.
func Field[T constraints.Unsigned](v *Vector, start, width int) (T, error) {
	r, err := v.Uint(start, start+width)
	return T(r), err
}

// Put writes the low width bits of val into v at start.
func Put[T constraints.Unsigned](v *Vector, start, width int, val T) error {
	return v.SetUint(start, width, uint64(val))
}

// Bytes packs the vector MSB first. A trailing partial byte is zero padded.
func (v *Vector) Bytes() []byte {
	out := make([]byte, (v.n+7)/8)
	for i := 0; i < v.n; i++ {
		if v.Bit(i) {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

func (v *Vector) Bools() []bool {
	out := make([]bool, v.n)
	for i := range out {
		out[i] = v.Bit(i)
	}
	return out
}

func (v *Vector) String() string {
	var sb strings.Builder
	sb.Grow(v.n)
	for i := 0; i < v.n; i++ {
		if v.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Equal compares length and bits. The corrected count is ignored.
func (v *Vector) Equal(o *Vector) bool {
	if v.n != o.n {
		return false
	}
	for i := range v.words {
		if v.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

func (v *Vector) OnesCount() int {
	c := 0
	for _, w := range v.words {
		c += mbits.OnesCount64(w)
	}
	return c
}

// Distance is the Hamming distance between v and o. Bits beyond the shorter
// vector count as differences.
func (v *Vector) Distance(o *Vector) int {
	a, b := v, o
	if a.n > b.n {
		a, b = b, a
	}
	d := b.n - a.n
	full := a.n / 64
	for i := 0; i < full; i++ {
		d += mbits.OnesCount64(a.words[i] ^ b.words[i])
	}
	for i := full * 64; i < a.n; i++ {
		if a.Bit(i) != b.Bit(i) {
			d++
		}
	}
	return d
}

// Concat joins vectors in order. Corrected counts are summed.
func Concat(vs ...*Vector) *Vector {
	n := 0
	for _, v := range vs {
		n += v.n
	}
	out := New(n)
	p := 0
	for _, v := range vs {
		for i := 0; i < v.n; i++ {
			if v.Bit(i) {
				out.set(p)
			}
			p++
		}
		out.corrected += v.corrected
	}
	return out
}
