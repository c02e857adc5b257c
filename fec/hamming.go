package fec

import (
	"fmt"

	"github.com/jancona/lmrdecode/bits"
)

// Hamming is a single error correcting code. Parity[j] lists the data bits
// that parity bit j covers; the K data bits come first in each word.
type Hamming struct {
	Name   string
	K      int
	Parity [][]int
	// syndrome -> bit in error
	locate map[uint16]int
}

var (
	// Hamming15_11 protects the rows of the DMR block product code.
	Hamming15_11 = MustHamming("hamming(15,11)", 11, [][]int{
		{0, 1, 2, 3, 5, 7, 8},
		{1, 2, 3, 4, 6, 8, 9},
		{2, 3, 4, 5, 7, 9, 10},
		{0, 1, 2, 4, 6, 7, 10},
	})
	// Hamming13_9 protects the columns.
	Hamming13_9 = MustHamming("hamming(13,9)", 9, [][]int{
		{0, 1, 3, 5, 6},
		{0, 1, 2, 4, 6, 7},
		{0, 1, 2, 3, 5, 7, 8},
		{0, 2, 4, 5, 8},
	})
)

func NewHamming(name string, k int, parity [][]int) (*Hamming, error) {
	if k < 1 || len(parity) == 0 || len(parity) > 16 {
		return nil, fmt.Errorf("%s: %d data and %d parity bits: %w", name, k, len(parity), ErrInvalidCode)
	}
	h := &Hamming{Name: name, K: k, locate: map[uint16]int{}}
	for _, row := range parity {
		for _, d := range row {
			if d < 0 || d >= k {
				return nil, fmt.Errorf("%s: parity covers bit %d: %w", name, d, ErrInvalidCode)
			}
		}
		h.Parity = append(h.Parity, append([]int(nil), row...))
	}
	// every single bit error needs its own nonzero syndrome
	word := make([]bool, h.N())
	for i := range word {
		word[i] = true
		s := h.syndrome(word)
		word[i] = false
		if _, dup := h.locate[s]; dup || s == 0 {
			return nil, fmt.Errorf("%s: bit %d has an ambiguous syndrome: %w", name, i, ErrInvalidCode)
		}
		h.locate[s] = i
	}
	return h, nil
}

func MustHamming(name string, k int, parity [][]int) *Hamming {
	h, err := NewHamming(name, k, parity)
	if err != nil {
		panic(err)
	}
	return h
}

// N is the codeword length.
func (h *Hamming) N() int {
	return h.K + len(h.Parity)
}

func (h *Hamming) syndrome(word []bool) uint16 {
	var s uint16
	for j, row := range h.Parity {
		p := word[h.K+j]
		for _, d := range row {
			p = p != word[d]
		}
		if p {
			s |= 1 << j
		}
	}
	return s
}

func (h *Hamming) parity(data []bool) []bool {
	out := make([]bool, len(h.Parity))
	for j, row := range h.Parity {
		for _, d := range row {
			out[j] = out[j] != data[d]
		}
	}
	return out
}

// correct fixes at most one bit of word in place. It returns the index
// flipped, or -1, and false when the syndrome matches no single error.
func (h *Hamming) correct(word []bool) (int, bool) {
	s := h.syndrome(word)
	if s == 0 {
		return -1, true
	}
	i, ok := h.locate[s]
	if !ok {
		return -1, false
	}
	word[i] = !word[i]
	return i, true
}

// Encode maps every K information bits to an N-bit codeword.
func (h *Hamming) Encode(info *bits.Vector) (*bits.Vector, error) {
	if info.Len()%h.K != 0 {
		return nil, fmt.Errorf("%s encode: %d bits is not a multiple of %d: %w", h.Name, info.Len(), h.K, ErrLength)
	}
	src := info.Bools()
	var out []bool
	for w := 0; w < len(src); w += h.K {
		data := src[w : w+h.K]
		out = append(out, data...)
		out = append(out, h.parity(data)...)
	}
	return bits.FromBools(out), nil
}

// Decode corrects each word on a copy of cw and keeps the codeword layout.
func (h *Hamming) Decode(cw *bits.Vector) (*bits.Vector, error) {
	n := h.N()
	if cw.Len()%n != 0 {
		return nil, fmt.Errorf("%s decode: %d bits is not a multiple of %d: %w", h.Name, cw.Len(), n, ErrLength)
	}
	word := cw.Bools()
	fixed := 0
	for w := 0; w < len(word); w += n {
		i, ok := h.correct(word[w : w+n])
		if !ok {
			return cw.Copy(), fmt.Errorf("%s word %d: %w", h.Name, w/n, ErrUncorrectable)
		}
		if i >= 0 {
			fixed++
		}
	}
	out := bits.FromBools(word)
	out.AddCorrected(cw.Corrected() + fixed)
	return out, nil
}

// Info extracts the data bits of each word.
func (h *Hamming) Info(cw *bits.Vector) (*bits.Vector, error) {
	n := h.N()
	if cw.Len()%n != 0 {
		return nil, fmt.Errorf("%s info: %d bits: %w", h.Name, cw.Len(), ErrLength)
	}
	src := cw.Bools()
	var out []bool
	for w := 0; w < len(src); w += n {
		out = append(out, src[w:w+h.K]...)
	}
	return bits.FromBools(out), nil
}
