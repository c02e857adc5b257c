package fec

import (
	"fmt"

	"github.com/jancona/lmrdecode/bits"
)

// galoisField is GF(2^m) in exponent/log form.
type galoisField struct {
	m, n int
	exp  []int // exp[i] = alpha^i, doubled so sums of logs need no modulo
	log  []int
}

func newGaloisField(m int, primitive int) (*galoisField, error) {
	if m < 2 || m > 16 {
		return nil, fmt.Errorf("field degree %d: %w", m, ErrInvalidCode)
	}
	if primitive>>m != 1 {
		return nil, fmt.Errorf("polynomial %#x has no x^%d term: %w", primitive, m, ErrInvalidCode)
	}
	n := 1<<m - 1
	gf := &galoisField{
		m:   m,
		n:   n,
		exp: make([]int, 2*n),
		log: make([]int, n+1),
	}
	for i := range gf.log {
		gf.log[i] = -1
	}
	x := 1
	for i := 0; i < n; i++ {
		if gf.log[x] != -1 {
			return nil, fmt.Errorf("polynomial %#x is not primitive: %w", primitive, ErrInvalidCode)
		}
		gf.exp[i] = x
		gf.exp[i+n] = x
		gf.log[x] = i
		x <<= 1
		if x&(1<<m) != 0 {
			x ^= primitive
		}
	}
	return gf, nil
}

func (gf *galoisField) mul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return gf.exp[gf.log[a]+gf.log[b]]
}

func (gf *galoisField) div(a, b int) int {
	if a == 0 {
		return 0
	}
	return gf.exp[(gf.log[a]-gf.log[b]+gf.n)%gf.n]
}

// pow returns alpha^e for any integer e.
func (gf *galoisField) pow(e int) int {
	e %= gf.n
	if e < 0 {
		e += gf.n
	}
	return gf.exp[e]
}

// BCH is a narrow-sense binary BCH code of length 2^m-1 with k information
// bits correcting up to t errors. Bit 0 of a codeword is the coefficient of
// x^(n-1); information bits come first.
type BCH struct {
	Name      string
	N, K, T   int
	gf        *galoisField
	generator []uint8 // generator[i] is the coefficient of x^i
}

// P25NID is the BCH(63,16,23) code protecting the P25 network identifier.
var P25NID = MustBCH("P25 NID", 6, 16, 11, 0x43)

// NewBCH builds the code whose generator is the least common multiple of the
// minimal polynomials of alpha^1..alpha^2t.
func NewBCH(name string, m, k, t, primitive int) (*BCH, error) {
	gf, err := newGaloisField(m, primitive)
	if err != nil {
		return nil, err
	}
	n := gf.n
	if t < 1 || k < 1 || k >= n {
		return nil, fmt.Errorf("bch(%d,%d) t=%d: %w", n, k, t, ErrInvalidCode)
	}

	// Collect the cyclotomic cosets of 1..2t and multiply (x + alpha^j) over
	// every member. The product has binary coefficients.
	used := make([]bool, n)
	g := []int{1}
	for i := 1; i <= 2*t; i++ {
		if used[i%n] {
			continue
		}
		for j := i % n; !used[j]; j = (j * 2) % n {
			used[j] = true
			root := gf.exp[j]
			next := make([]int, len(g)+1)
			for d, c := range g {
				next[d+1] ^= c
				next[d] ^= gf.mul(c, root)
			}
			g = next
		}
	}
	if len(g)-1 != n-k {
		return nil, fmt.Errorf("bch(%d,%d) t=%d: generator degree %d: %w", n, k, t, len(g)-1, ErrInvalidCode)
	}
	gen := make([]uint8, len(g))
	for i, c := range g {
		if c > 1 {
			return nil, fmt.Errorf("bch generator is not binary: %w", ErrInvalidCode)
		}
		gen[i] = uint8(c)
	}
	return &BCH{Name: name, N: n, K: k, T: t, gf: gf, generator: gen}, nil
}

func MustBCH(name string, m, k, t, primitive int) *BCH {
	b, err := NewBCH(name, m, k, t, primitive)
	if err != nil {
		panic(err)
	}
	return b
}

// Generator returns the generator polynomial as an integer, bit i holding the
// coefficient of x^i.
func (b *BCH) Generator() uint64 {
	var g uint64
	for i, c := range b.generator {
		if c != 0 {
			g |= 1 << i
		}
	}
	return g
}

// Encode returns the systematic codeword for k information bits.
func (b *BCH) Encode(info *bits.Vector) (*bits.Vector, error) {
	if info.Len() != b.K {
		return nil, fmt.Errorf("%s encode: %d bits, want %d: %w", b.Name, info.Len(), b.K, ErrLength)
	}
	r := b.N - b.K
	work := make([]uint8, b.N)
	for i := 0; i < b.K; i++ {
		if info.Bit(i) {
			work[i] = 1
		}
	}
	for i := 0; i < b.K; i++ {
		if work[i] == 0 {
			continue
		}
		for j := 0; j <= r; j++ {
			work[i+j] ^= b.generator[r-j]
		}
	}
	out := bits.New(b.N)
	for i := 0; i < b.N; i++ {
		if i < b.K {
			if info.Bit(i) {
				_ = out.Set(i, true)
			}
		} else if work[i] != 0 {
			_ = out.Set(i, true)
		}
	}
	return out, nil
}

// Syndromes returns S_1..S_2t as field elements.
func (b *BCH) Syndromes(cw *bits.Vector) []int {
	s := make([]int, 2*b.T)
	for i := 0; i < b.N && i < cw.Len(); i++ {
		if !cw.Bit(i) {
			continue
		}
		deg := b.N - 1 - i
		for j := range s {
			s[j] ^= b.gf.pow((j + 1) * deg)
		}
	}
	return s
}

func zero(s []int) bool {
	for _, x := range s {
		if x != 0 {
			return false
		}
	}
	return true
}

// Decode corrects up to T bit errors. It returns ErrUncorrectable when the
// word is farther than T from every codeword it can prove.
func (b *BCH) Decode(cw *bits.Vector) (*bits.Vector, error) {
	if cw.Len() != b.N {
		return nil, fmt.Errorf("%s decode: %d bits, want %d: %w", b.Name, cw.Len(), b.N, ErrLength)
	}
	out := cw.Copy()
	s := b.Syndromes(cw)
	if zero(s) {
		return out, nil
	}

	locator, degree := b.berlekampMassey(s)
	if degree > b.T {
		return out, fmt.Errorf("%s: locator degree %d: %w", b.Name, degree, ErrUncorrectable)
	}
	var errs []int
	for i := 0; i < b.N; i++ {
		// position i holds x^(n-1-i); it is in error when alpha^-(n-1-i) is a root
		x := b.gf.pow(-(b.N - 1 - i))
		v, xp := 0, 1
		for _, c := range locator {
			v ^= b.gf.mul(c, xp)
			xp = b.gf.mul(xp, x)
		}
		if v == 0 {
			errs = append(errs, i)
		}
	}
	if len(errs) != degree {
		return out, fmt.Errorf("%s: %d roots for degree %d: %w", b.Name, len(errs), degree, ErrUncorrectable)
	}
	for _, i := range errs {
		_ = out.Flip(i)
	}
	if !zero(b.Syndromes(out)) {
		return cw.Copy(), fmt.Errorf("%s: residual syndrome: %w", b.Name, ErrUncorrectable)
	}
	out.AddCorrected(len(errs))
	return out, nil
}

// berlekampMassey returns the error locator polynomial (coefficient of x^i at
// index i) and its degree.
func (b *BCH) berlekampMassey(s []int) ([]int, int) {
	gf := b.gf
	c := []int{1}
	prev := []int{1}
	l, m, last := 0, 1, 1
	for r := 0; r < len(s); r++ {
		d := s[r]
		for i := 1; i <= l && i < len(c); i++ {
			d ^= gf.mul(c[i], s[r-i])
		}
		if d == 0 {
			m++
			continue
		}
		coef := gf.div(d, last)
		next := make([]int, max(len(c), len(prev)+m))
		copy(next, c)
		for i, p := range prev {
			next[i+m] ^= gf.mul(coef, p)
		}
		if 2*l <= r {
			prev = c
			l = r + 1 - l
			last = d
			m = 1
		} else {
			m++
		}
		c = next
	}
	return c, l
}

// Info extracts the information bits of a codeword.
func (b *BCH) Info(cw *bits.Vector) (*bits.Vector, error) {
	return cw.Slice(0, b.K)
}
