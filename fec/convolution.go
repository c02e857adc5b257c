package fec

import (
	"fmt"
	"math"

	"github.com/jancona/lmrdecode/bits"
)

const (
	softTrue  = 1.0
	softMaybe = 0.5
	softFalse = 0.0
)

// PuncturePattern lists, cyclically over coded output bits, which bits are
// transmitted.
type PuncturePattern []bool

var LSFPuncturePattern = PuncturePattern{
	true, true, false, true, true, true, false, true,
	true, true, false, true, true, true, false, true,
	true, true, false, true, true, true, false, true,
	true, true, false, true, true, true, false, true,
	true, true, false, true, true, true, false, true,
	true, true, false, true, true, true, false, true,
	true, true, false, true, true, true, false, true,
	true, true, false, true, true,
}

var StreamPuncturePattern = PuncturePattern{true, true, true, true, true, true, true, true, true, true, true, false}

var PacketPuncturePattern = PuncturePattern{true, true, true, true, true, true, true, false}

var ThreeQuarterPuncturePattern = PuncturePattern{true, true, false, true, true, false}

// NXDN channel puncturing: the SACCH drops one bit in six, the FACCH1 one in
// four and the UDCH and CAC two in fourteen.
var (
	NXDNSACCHPuncturePattern  = PuncturePattern{true, true, true, true, true, false}
	NXDNFACCH1PuncturePattern = PuncturePattern{true, false, true, true}
	NXDNUDCHPuncturePattern   = PuncturePattern{
		true, true, true, false, true, true, true,
		true, true, true, true, false, true, true,
	}
)

// ConvolutionalCode is a feedforward code with one input bit per step. Bit i
// of a generator polynomial taps the input delayed by i steps, so bit 0 is the
// current input.
type ConvolutionalCode struct {
	Name        string
	K           int
	Polynomials []uint32
	Puncture    PuncturePattern
	// Terminated codes append K-1 zero bits to flush the encoder.
	Terminated bool
}

var (
	M17LSF    = MustConvolutionalCode("M17 LSF", 5, []uint32{0x19, 0x17}, LSFPuncturePattern, true)
	M17Stream = MustConvolutionalCode("M17 stream", 5, []uint32{0x19, 0x17}, StreamPuncturePattern, true)
	M17Packet = MustConvolutionalCode("M17 packet", 5, []uint32{0x19, 0x17}, PacketPuncturePattern, true)
	Rate12K7  = MustConvolutionalCode("rate 1/2 K=7", 7, []uint32{0o171, 0o133}, nil, true)
	Rate34K7  = MustConvolutionalCode("rate 3/4 K=7", 7, []uint32{0o171, 0o133}, ThreeQuarterPuncturePattern, true)

	NXDNSACCH  = MustConvolutionalCode("NXDN SACCH", 5, []uint32{0x19, 0x17}, NXDNSACCHPuncturePattern, true)
	NXDNFACCH1 = MustConvolutionalCode("NXDN FACCH1", 5, []uint32{0x19, 0x17}, NXDNFACCH1PuncturePattern, true)
	// NXDNUDCH also codes the FACCH2 and the outbound CAC.
	NXDNUDCH = MustConvolutionalCode("NXDN UDCH", 5, []uint32{0x19, 0x17}, NXDNUDCHPuncturePattern, true)
)

func NewConvolutionalCode(name string, k int, polys []uint32, puncture PuncturePattern, terminated bool) (*ConvolutionalCode, error) {
	if k < 2 || k > 16 {
		return nil, fmt.Errorf("%s: constraint length %d: %w", name, k, ErrInvalidCode)
	}
	if len(polys) == 0 {
		return nil, fmt.Errorf("%s: no generator polynomials: %w", name, ErrInvalidCode)
	}
	for _, g := range polys {
		if g == 0 || g >= 1<<k {
			return nil, fmt.Errorf("%s: polynomial %#o for K=%d: %w", name, g, k, ErrInvalidCode)
		}
	}
	if len(puncture) > 0 {
		kept := false
		for _, p := range puncture {
			kept = kept || p
		}
		if !kept {
			return nil, fmt.Errorf("%s: puncture pattern keeps no bits: %w", name, ErrInvalidCode)
		}
	}
	return &ConvolutionalCode{
		Name:        name,
		K:           k,
		Polynomials: append([]uint32(nil), polys...),
		Puncture:    append(PuncturePattern(nil), puncture...),
		Terminated:  terminated,
	}, nil
}

func MustConvolutionalCode(name string, k int, polys []uint32, puncture PuncturePattern, terminated bool) *ConvolutionalCode {
	c, err := NewConvolutionalCode(name, k, polys, puncture, terminated)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *ConvolutionalCode) states() int {
	return 1 << (c.K - 1)
}

func (c *ConvolutionalCode) tail() int {
	if c.Terminated {
		return c.K - 1
	}
	return 0
}

func (c *ConvolutionalCode) kept(p int) bool {
	return len(c.Puncture) == 0 || c.Puncture[p%len(c.Puncture)]
}

// CodedLength is the number of transmitted bits for n information bits.
func (c *ConvolutionalCode) CodedLength(n int) int {
	total := (n + c.tail()) * len(c.Polynomials)
	if len(c.Puncture) == 0 {
		return total
	}
	out := 0
	for p := 0; p < total; p++ {
		if c.kept(p) {
			out++
		}
	}
	return out
}

// Encode starts from the zero state and applies the puncture pattern.
func (c *ConvolutionalCode) Encode(info *bits.Vector) *bits.Vector {
	steps := info.Len() + c.tail()
	out := make([]bool, 0, c.CodedLength(info.Len()))
	state := uint32(0)
	p := 0
	for i := 0; i < steps; i++ {
		r := state << 1
		if i < info.Len() && info.Bit(i) {
			r |= 1
		}
		for _, g := range c.Polynomials {
			if c.kept(p) {
				out = append(out, parity(r&g) != 0)
			}
			p++
		}
		state = r & uint32(c.states()-1)
	}
	return bits.FromBools(out)
}

// depuncture expands received values to whole trellis steps, inserting
// erasure for punctured positions. Trailing punctured positions of the last
// step are erased too; only real bits left over in a partial step are
// dropped. It returns the expanded values, which of them were received and
// the number of real bits dropped.
func depuncture[T any](c *ConvolutionalCode, rx []T, erasure T) ([]T, []bool, int) {
	n := len(c.Polynomials)
	full := make([]T, 0, len(rx)*2)
	isReal := make([]bool, 0, len(rx)*2)
	p := 0
	for i := 0; i < len(rx); {
		if c.kept(p) {
			full = append(full, rx[i])
			isReal = append(isReal, true)
			i++
		} else {
			full = append(full, erasure)
			isReal = append(isReal, false)
		}
		p++
	}
	for len(full)%n != 0 && !c.kept(p) {
		full = append(full, erasure)
		isReal = append(isReal, false)
		p++
	}
	if rem := len(full) % n; rem != 0 {
		full = full[:len(full)-rem]
		isReal = isReal[:len(isReal)-rem]
	}
	return full, isReal, len(rx) - countTrue(isReal)
}

func countTrue(v []bool) int {
	n := 0
	for _, b := range v {
		if b {
			n++
		}
	}
	return n
}

func (c *ConvolutionalCode) pred(ns, i int) int {
	return ns>>1 | i<<(c.K-2)
}

// endState is the state a terminated code must finish in.
func (c *ConvolutionalCode) endState() int {
	if c.Terminated {
		return 0
	}
	return -1
}

// Decode is a hard-decision Viterbi decoder. The count is the number of
// received bits that differ from the re-encoded best path, plus any bits of
// a trailing partial step that had to be dropped. It is also added to the
// returned vector's corrected count.
//
// When the last step of a punctured code has punctured positions, its
// received bits may be stray trailing bits rather than a step. Both readings
// are decoded and the one with fewer errors wins; a tie drops the step.
func (c *ConvolutionalCode) Decode(coded *bits.Vector) (*bits.Vector, int) {
	rx := make([]int8, coded.Len())
	for i := range rx {
		if coded.Bit(i) {
			rx[i] = 1
		}
	}
	full, isReal, truncated := depuncture(c, rx, -1)
	out, errs := c.decodeHard(full, truncated)

	n := len(c.Polynomials)
	if last := len(full) - n; len(c.Puncture) > 0 && last >= 0 && countTrue(isReal[last:]) < n {
		alt, altErrs := c.decodeHard(full[:last], truncated+countTrue(isReal[last:]))
		if altErrs <= errs {
			out, errs = alt, altErrs
		}
	}
	out.AddCorrected(errs)
	return out, errs
}

func (c *ConvolutionalCode) decodeHard(full []int8, truncated int) (*bits.Vector, int) {
	n := len(c.Polynomials)
	steps := len(full) / n

	path, _ := viterbi(c.states(), 2, steps, c.endState(), c.pred, func(step, ps, ns int) int {
		r := uint32(ps)<<1 | uint32(ns&1)
		d := 0
		for j, g := range c.Polynomials {
			sym := full[step*n+j]
			if sym >= 0 && int8(parity(r&g)) != sym {
				d++
			}
		}
		return d
	})

	// errors against the best path, erasures excluded
	errs := truncated
	prev := 0
	for step, s := range path {
		r := uint32(prev)<<1 | uint32(s&1)
		for j, g := range c.Polynomials {
			sym := full[step*n+j]
			if sym >= 0 && int8(parity(r&g)) != sym {
				errs++
			}
		}
		prev = s
	}
	return c.infoBits(path), errs
}

// DecodeSoft decodes soft bits in [0,1], 0 being a confident zero. The
// returned cost excludes the constant contribution of punctured positions.
func (c *ConvolutionalCode) DecodeSoft(soft []float32) (*bits.Vector, float64) {
	full, isReal, _ := depuncture(c, soft, softMaybe)
	erased := len(isReal) - countTrue(isReal)
	n := len(c.Polynomials)
	steps := len(full) / n

	path, cost := viterbi(c.states(), 2, steps, c.endState(), c.pred, func(step, ps, ns int) float64 {
		r := uint32(ps)<<1 | uint32(ns&1)
		m := 0.0
		for j, g := range c.Polynomials {
			exp := softFalse
			if parity(r&g) != 0 {
				exp = softTrue
			}
			m += math.Abs(exp - float64(full[step*n+j]))
		}
		return m
	})
	return c.infoBits(path), cost - float64(erased)*softMaybe
}

func (c *ConvolutionalCode) infoBits(path []int) *bits.Vector {
	k := len(path) - c.tail()
	if k < 0 {
		k = 0
	}
	out := bits.New(k)
	for i := 0; i < k; i++ {
		if path[i]&1 != 0 {
			_ = out.Set(i, true)
		}
	}
	return out
}
