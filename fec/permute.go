package fec

import (
	"fmt"

	"github.com/jancona/lmrdecode/bits"
)

// Permutation reorders bits: output bit i is input bit p[i].
type Permutation []int

// Apply returns the permuted copy of v.
func (p Permutation) Apply(v *bits.Vector) (*bits.Vector, error) {
	if v.Len() != len(p) {
		return nil, fmt.Errorf("permutation of %d bits applied to %d: %w", len(p), v.Len(), ErrLength)
	}
	out := bits.New(len(p))
	for i, src := range p {
		if v.Bit(src) {
			_ = out.Set(i, true)
		}
	}
	out.AddCorrected(v.Corrected())
	return out, nil
}

func (p Permutation) Inverse() Permutation {
	inv := make(Permutation, len(p))
	for i, src := range p {
		inv[src] = i
	}
	return inv
}

// M17Interleaver is the quadratic permutation polynomial interleaver
// f(x) = (45x + 92x^2) mod 368 applied to a frame payload. It is its own
// inverse.
var M17Interleaver = func() Permutation {
	p := make(Permutation, 368)
	for x := range p {
		p[x] = (45*x + 92*x*x) % 368
	}
	return p
}()

// P25DataInterleaver is the TIA-102 data block interleaver over 98 dibits:
// transmitted dibit pairs step through the block by 8 in four passes.
var P25DataInterleaver = func() Permutation {
	var order []int
	for phase := 0; phase < 8; phase += 2 {
		for d := phase; d+1 < 98; d += 8 {
			order = append(order, d, d+1)
		}
	}
	p := make(Permutation, 196)
	for i, d := range order {
		p[2*i] = 2 * d
		p[2*i+1] = 2*d + 1
	}
	return p
}()

// P25DataDeinterleaver undoes P25DataInterleaver.
var P25DataDeinterleaver = P25DataInterleaver.Inverse()

var randomizeSeq = []byte{
	0xD6, 0xB5, 0xE2, 0x30, 0x82, 0xFF, 0x84, 0x62, 0xBA, 0x4E,
	0x96, 0x90, 0xD8, 0x98, 0xDD, 0x5D, 0x0C, 0xC8, 0x52, 0x43,
	0x91, 0x1D, 0xF8, 0x6E, 0x68, 0x2F, 0x35, 0xDA, 0x14, 0xEA,
	0xCD, 0x76, 0x19, 0x8D, 0xD5, 0x80, 0xD1, 0x33, 0x87, 0x13,
	0x57, 0x18, 0x2D, 0x29, 0x78, 0xC3,
}

// M17Randomize XORs a frame payload with the M17 decorrelator sequence.
// Applying it twice restores the input.
func M17Randomize(v *bits.Vector) (*bits.Vector, error) {
	if v.Len() > len(randomizeSeq)*8 {
		return nil, fmt.Errorf("randomizer covers %d bits, got %d: %w", len(randomizeSeq)*8, v.Len(), ErrLength)
	}
	out := v.Copy()
	for i := 0; i < v.Len(); i++ {
		if (randomizeSeq[i/8]>>(7-(i%8)))&1 != 0 {
			_ = out.Flip(i)
		}
	}
	return out, nil
}

// StripStatus removes the status dibit inserted after every period-1 data
// dibits. offset is the dibit index of the first status dibit in v.
func StripStatus(v *bits.Vector, period, offset int) (*bits.Vector, error) {
	if period < 2 || offset < 0 || v.Len()%2 != 0 {
		return nil, fmt.Errorf("status strip period %d offset %d on %d bits: %w", period, offset, v.Len(), ErrLength)
	}
	dibits := v.Len() / 2
	keep := make([]bool, 0, v.Len())
	for d := 0; d < dibits; d++ {
		if d >= offset && (d-offset)%period == 0 {
			continue
		}
		keep = append(keep, v.Bit(2*d), v.Bit(2*d+1))
	}
	out := bits.FromBools(keep)
	out.AddCorrected(v.Corrected())
	return out, nil
}

// InsertStatus is the inverse of StripStatus, filling status dibits with
// the given value.
func InsertStatus(v *bits.Vector, period, offset int, status uint8) (*bits.Vector, error) {
	if period < 2 || offset < 0 || v.Len()%2 != 0 {
		return nil, fmt.Errorf("status insert period %d offset %d on %d bits: %w", period, offset, v.Len(), ErrLength)
	}
	var out []bool
	src := 0
	for d := 0; src < v.Len(); d++ {
		if d >= offset && (d-offset)%period == 0 {
			out = append(out, status&2 != 0, status&1 != 0)
			continue
		}
		out = append(out, v.Bit(src), v.Bit(src+1))
		src += 2
	}
	return bits.FromBools(out), nil
}

// NXDNDeinterleaver undoes the NXDN block interleaver, which writes coded
// bits into rows of cols bits and sends the rows columns first.
func NXDNDeinterleaver(rows, cols int) Permutation {
	p := make(Permutation, rows*cols)
	for i := range p {
		p[i] = (i%cols)*rows + i/cols
	}
	return p
}

var (
	NXDNSACCHDeinterleaver  = NXDNDeinterleaver(12, 5)
	NXDNFACCH1Deinterleaver = NXDNDeinterleaver(16, 9)
	NXDNUDCHDeinterleaver   = NXDNDeinterleaver(12, 29)
	NXDNCACDeinterleaver    = NXDNDeinterleaver(12, 25)
)

// nxdnScrambleSeq is the PN9 sequence x^9+x^4+1 seeded with 0xE4, one bit
// per dibit of an NXDN frame.
var nxdnScrambleSeq = func() []bool {
	seq := make([]bool, 182)
	for i := range seq {
		if i < 9 {
			seq[i] = 0xE4>>i&1 != 0
		} else {
			seq[i] = seq[i-9] != seq[i-5]
		}
	}
	return seq
}()

// NXDNScramble inverts the first bit of each dibit where the scrambler
// sequence is set. Applying it twice restores the input.
func NXDNScramble(v *bits.Vector) (*bits.Vector, error) {
	if v.Len() > 2*len(nxdnScrambleSeq) {
		return nil, fmt.Errorf("nxdn scrambler covers %d bits, got %d: %w", 2*len(nxdnScrambleSeq), v.Len(), ErrLength)
	}
	out := v.Copy()
	for i := 0; 2*i < v.Len(); i++ {
		if nxdnScrambleSeq[i] {
			_ = out.Flip(2 * i)
		}
	}
	return out, nil
}
