package fec

import (
	"fmt"
	mbits "math/bits"

	"github.com/jancona/lmrdecode/bits"
)

// constellation point -> transmitted dibit pair
var trellisPairs = [16]uint8{2, 10, 7, 15, 14, 6, 11, 3, 13, 5, 8, 0, 1, 9, 4, 12}

// TrellisCode is the P25 trellis-coded modulation. Each input symbol of
// BitsPerSymbol bits is mapped, given the previous input, to a constellation
// point sent as four bits. One zero symbol flushes the encoder.
type TrellisCode struct {
	Name          string
	BitsPerSymbol int
	table         [][]uint8 // [state][input] -> constellation point
}

var P25HalfRate = &TrellisCode{
	Name:          "P25 1/2 trellis",
	BitsPerSymbol: 2,
	table: [][]uint8{
		{0, 15, 12, 3},
		{4, 11, 8, 7},
		{13, 2, 1, 14},
		{9, 6, 5, 10},
	},
}

var P25ThreeQuarterRate = &TrellisCode{
	Name:          "P25 3/4 trellis",
	BitsPerSymbol: 3,
	table: [][]uint8{
		{0, 8, 4, 12, 2, 10, 6, 14},
		{4, 12, 2, 10, 6, 14, 0, 8},
		{1, 9, 5, 13, 3, 11, 7, 15},
		{5, 13, 3, 11, 7, 15, 1, 9},
		{3, 11, 7, 15, 1, 9, 5, 13},
		{7, 15, 1, 9, 5, 13, 3, 11},
		{2, 10, 6, 14, 0, 8, 4, 12},
		{6, 14, 0, 8, 4, 12, 2, 10},
	},
}

func (t *TrellisCode) states() int {
	return 1 << t.BitsPerSymbol
}

// Encode maps info, whose length must be a multiple of BitsPerSymbol, to
// 4*(len/BitsPerSymbol+1) coded bits.
func (t *TrellisCode) Encode(info *bits.Vector) (*bits.Vector, error) {
	if info.Len()%t.BitsPerSymbol != 0 {
		return nil, fmt.Errorf("%s: %d bits is not a multiple of %d: %w", t.Name, info.Len(), t.BitsPerSymbol, ErrLength)
	}
	symbols := info.Len()/t.BitsPerSymbol + 1
	out := bits.New(symbols * 4)
	state := 0
	for s := 0; s < symbols; s++ {
		in := 0
		if s < symbols-1 {
			v, _ := info.Uint(s*t.BitsPerSymbol, (s+1)*t.BitsPerSymbol)
			in = int(v)
		}
		_ = out.SetUint(s*4, 4, uint64(trellisPairs[t.table[state][in]]))
		state = in
	}
	return out, nil
}

// Decode runs a hard-decision Viterbi search on 4-bit symbols. Trailing bits
// that do not fill a symbol are dropped and counted as errors.
func (t *TrellisCode) Decode(coded *bits.Vector) (*bits.Vector, int) {
	steps := coded.Len() / 4
	truncated := coded.Len() % 4
	rx := make([]uint8, steps)
	for i := range rx {
		v, _ := coded.Uint(i*4, i*4+4)
		rx[i] = uint8(v)
	}

	path, metric := viterbi(t.states(), t.states(), steps, -1,
		func(ns, i int) int { return i },
		func(step, ps, ns int) int {
			return mbits.OnesCount8(trellisPairs[t.table[ps][ns]] ^ rx[step])
		})

	n := steps - 1
	if n < 0 {
		n = 0
	}
	out := bits.New(n * t.BitsPerSymbol)
	for s := 0; s < n; s++ {
		_ = out.SetUint(s*t.BitsPerSymbol, t.BitsPerSymbol, uint64(path[s]))
	}
	errs := metric + truncated
	out.AddCorrected(errs)
	return out, errs
}
