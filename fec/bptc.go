package fec

import (
	"fmt"

	"github.com/jancona/lmrdecode/bits"
)

const (
	bptcBits    = 196
	bptcRows    = 13
	bptcCols    = 15
	bptcDataRow = 9
	bptcPasses  = 5
)

// BPTC196 is the DMR block product turbo code. 96 data bits fill a 13 by 15
// matrix after one pad bit and three reserved bits; the first nine rows are
// Hamming(15,11) words and every column is a Hamming(13,9) word. The matrix
// is sent interleaved.
type BPTC196 struct{}

// bptcInterleave maps matrix position i to its transmitted position.
func bptcInterleave(i int) int {
	return i * 181 % bptcBits
}

// bptcData lists the matrix positions of the data bits in order.
var bptcData = func() []int {
	var pos []int
	for r := 0; r < bptcDataRow; r++ {
		first := 0
		if r == 0 {
			first = 3
		}
		for c := first; c < 11; c++ {
			pos = append(pos, 1+r*bptcCols+c)
		}
	}
	return pos
}()

func bptcRow(m []bool, r int) []bool {
	return m[1+r*bptcCols : 1+(r+1)*bptcCols]
}

func bptcColumn(m []bool, c int) []bool {
	col := make([]bool, bptcRows)
	for r := range col {
		col[r] = m[1+r*bptcCols+c]
	}
	return col
}

func bptcSetColumn(m []bool, c int, col []bool) {
	for r, b := range col {
		m[1+r*bptcCols+c] = b
	}
}

// Encode maps 96 data bits to 196 transmitted bits.
func (BPTC196) Encode(info *bits.Vector) (*bits.Vector, error) {
	if info.Len() != len(bptcData) {
		return nil, fmt.Errorf("bptc encode: %d bits, want %d: %w", info.Len(), len(bptcData), ErrLength)
	}
	m := make([]bool, bptcBits)
	for i, p := range bptcData {
		m[p] = info.Bit(i)
	}
	for r := 0; r < bptcDataRow; r++ {
		row := bptcRow(m, r)
		copy(row[11:], Hamming15_11.parity(row[:11]))
	}
	for c := 0; c < bptcCols; c++ {
		col := bptcColumn(m, c)
		copy(col[9:], Hamming13_9.parity(col[:9]))
		bptcSetColumn(m, c, col)
	}
	out := bits.New(bptcBits)
	for i, b := range m {
		if b {
			_ = out.Set(bptcInterleave(i), true)
		}
	}
	return out, nil
}

// Decode deinterleaves cw and corrects the matrix by alternating column and
// row passes until a pass changes nothing. The result keeps the transmitted
// layout; use Info to extract the data bits.
func (BPTC196) Decode(cw *bits.Vector) (*bits.Vector, error) {
	if cw.Len() != bptcBits {
		return nil, fmt.Errorf("bptc decode: %d bits, want %d: %w", cw.Len(), bptcBits, ErrLength)
	}
	m := make([]bool, bptcBits)
	for i := range m {
		m[i] = cw.Bit(bptcInterleave(i))
	}
	rx := append([]bool(nil), m...)

	clean := false
	for pass := 0; pass < bptcPasses && !clean; pass++ {
		clean = true
		for c := 0; c < bptcCols; c++ {
			col := bptcColumn(m, c)
			if i, _ := Hamming13_9.correct(col); i >= 0 {
				bptcSetColumn(m, c, col)
				clean = false
			}
		}
		for r := 0; r < bptcDataRow; r++ {
			if i, _ := Hamming15_11.correct(bptcRow(m, r)); i >= 0 {
				clean = false
			}
		}
	}
	for c := 0; c < bptcCols; c++ {
		if Hamming13_9.syndrome(bptcColumn(m, c)) != 0 {
			return cw.Copy(), fmt.Errorf("bptc column %d: %w", c, ErrUncorrectable)
		}
	}
	for r := 0; r < bptcDataRow; r++ {
		if Hamming15_11.syndrome(bptcRow(m, r)) != 0 {
			return cw.Copy(), fmt.Errorf("bptc row %d: %w", r, ErrUncorrectable)
		}
	}

	out := bits.New(bptcBits)
	fixed := 0
	for i, b := range m {
		if b {
			_ = out.Set(bptcInterleave(i), true)
		}
		if b != rx[i] {
			fixed++
		}
	}
	out.AddCorrected(cw.Corrected() + fixed)
	return out, nil
}

// Info deinterleaves cw and returns its 96 data bits.
func (BPTC196) Info(cw *bits.Vector) (*bits.Vector, error) {
	if cw.Len() != bptcBits {
		return nil, fmt.Errorf("bptc info: %d bits: %w", cw.Len(), ErrLength)
	}
	out := bits.New(len(bptcData))
	for i, p := range bptcData {
		if cw.Bit(bptcInterleave(p)) {
			_ = out.Set(i, true)
		}
	}
	return out, nil
}
