package fec

import (
	"fmt"
	mbits "math/bits"

	"github.com/jancona/lmrdecode/bits"
)

// Precomputed encoding matrix for Golay(24, 12)
var golayMatrix = [12]uint16{
	0x8eb, 0x93e, 0xa97, 0xdc6, 0x367, 0x6cd,
	0xd99, 0x3da, 0x7b4, 0xf68, 0x63b, 0xc75,
}

// Golay24 is the extended Golay(24,12) code used by the M17 link information
// channel. It corrects up to three errors per 24-bit word; the 12 data bits
// come first.
type Golay24 struct{}

func golayEncode(data uint16) uint32 {
	var checksum uint16
	for i := 0; i < 12; i++ {
		if data&(1<<i) != 0 {
			checksum ^= golayMatrix[i]
		}
	}
	return uint32(data&0xFFF)<<12 | uint32(checksum)
}

// golayCorrect returns the error pattern of a received word, or false if
// more than three bits are in error.
func golayCorrect(cw uint32) (uint32, bool) {
	data := uint16(cw>>12) & 0xFFF
	par := uint16(cw & 0xFFF)
	syn := par ^ uint16(golayEncode(data)&0xFFF)
	if syn == 0 {
		return 0, true
	}
	// errors confined to the parity half
	if mbits.OnesCount16(syn) <= 3 {
		return uint32(syn), true
	}
	for i := 0; i < 12; i++ {
		e1 := uint16(1) << i
		if r := par ^ uint16(golayEncode(data^e1)&0xFFF); mbits.OnesCount16(r) <= 2 {
			return uint32(e1)<<12 | uint32(r), true
		}
	}
	for i := 0; i < 12; i++ {
		for j := i + 1; j < 12; j++ {
			e2 := uint16(1)<<i | uint16(1)<<j
			if r := par ^ uint16(golayEncode(data^e2)&0xFFF); mbits.OnesCount16(r) <= 1 {
				return uint32(e2)<<12 | uint32(r), true
			}
		}
	}
	for i := 0; i < 12; i++ {
		for j := i + 1; j < 12; j++ {
			for k := j + 1; k < 12; k++ {
				e3 := uint16(1)<<i | uint16(1)<<j | uint16(1)<<k
				if par == uint16(golayEncode(data^e3)&0xFFF) {
					return uint32(e3) << 12, true
				}
			}
		}
	}
	return 0, false
}

// Encode maps every 12 information bits to a 24-bit codeword.
func (Golay24) Encode(info *bits.Vector) (*bits.Vector, error) {
	if info.Len()%12 != 0 {
		return nil, fmt.Errorf("golay encode: %d bits is not a multiple of 12: %w", info.Len(), ErrLength)
	}
	out := bits.New(info.Len() * 2)
	for w := 0; w < info.Len()/12; w++ {
		data, _ := info.Uint(w*12, w*12+12)
		_ = out.SetUint(w*24, 24, uint64(golayEncode(uint16(data))))
	}
	return out, nil
}

// Decode corrects each 24-bit word of cw in place on a copy. The result keeps
// the codeword layout; use Info to extract the data bits.
func (Golay24) Decode(cw *bits.Vector) (*bits.Vector, error) {
	if cw.Len()%24 != 0 {
		return nil, fmt.Errorf("golay decode: %d bits is not a multiple of 24: %w", cw.Len(), ErrLength)
	}
	out := cw.Copy()
	for w := 0; w < cw.Len()/24; w++ {
		word, _ := cw.Uint(w*24, w*24+24)
		e, ok := golayCorrect(uint32(word))
		if !ok {
			return cw.Copy(), fmt.Errorf("golay word %d: %w", w, ErrUncorrectable)
		}
		_ = out.SetUint(w*24, 24, uint64(uint32(word)^e))
		out.AddCorrected(mbits.OnesCount32(e))
	}
	return out, nil
}

// Info extracts the 12 data bits from each 24-bit word.
func (Golay24) Info(cw *bits.Vector) (*bits.Vector, error) {
	if cw.Len()%24 != 0 {
		return nil, fmt.Errorf("golay info: %d bits: %w", cw.Len(), ErrLength)
	}
	out := bits.New(cw.Len() / 2)
	for w := 0; w < cw.Len()/24; w++ {
		data, _ := cw.Uint(w*24, w*24+12)
		_ = out.SetUint(w*12, 12, data)
	}
	return out, nil
}

// Golay20 is the Golay(20,8) code that protects the DMR slot type: the
// Golay(24,12) code with its four high data bits fixed at zero. It keeps the
// minimum distance of eight, so three errors per word are corrected. The 8
// data bits come first.
type Golay20 struct{}

func golay20Encode(data uint8) uint32 {
	return golayEncode(uint16(data))
}

// golay20Correct returns the error pattern of a received word, or false if
// it lies more than three bits from every codeword.
func golay20Correct(cw uint32) (uint32, bool) {
	e, ok := golayCorrect(cw)
	// a correction in the shortened positions means a distant word
	if !ok || e>>20 != 0 {
		return 0, false
	}
	return e, true
}

// Encode maps every 8 information bits to a 20-bit codeword.
func (Golay20) Encode(info *bits.Vector) (*bits.Vector, error) {
	if info.Len()%8 != 0 {
		return nil, fmt.Errorf("golay(20,8) encode: %d bits is not a multiple of 8: %w", info.Len(), ErrLength)
	}
	out := bits.New(info.Len() / 8 * 20)
	for w := 0; w < info.Len()/8; w++ {
		data, _ := info.Uint(w*8, w*8+8)
		_ = out.SetUint(w*20, 20, uint64(golay20Encode(uint8(data))))
	}
	return out, nil
}

// Decode corrects each 20-bit word on a copy of cw.
func (Golay20) Decode(cw *bits.Vector) (*bits.Vector, error) {
	if cw.Len()%20 != 0 {
		return nil, fmt.Errorf("golay(20,8) decode: %d bits is not a multiple of 20: %w", cw.Len(), ErrLength)
	}
	out := cw.Copy()
	for w := 0; w < cw.Len()/20; w++ {
		word, _ := cw.Uint(w*20, w*20+20)
		e, ok := golay20Correct(uint32(word))
		if !ok {
			return cw.Copy(), fmt.Errorf("golay(20,8) word %d: %w", w, ErrUncorrectable)
		}
		_ = out.SetUint(w*20, 20, uint64(uint32(word)^e))
		out.AddCorrected(mbits.OnesCount32(e))
	}
	return out, nil
}

// Info extracts the 8 data bits from each 20-bit word.
func (Golay20) Info(cw *bits.Vector) (*bits.Vector, error) {
	if cw.Len()%20 != 0 {
		return nil, fmt.Errorf("golay(20,8) info: %d bits: %w", cw.Len(), ErrLength)
	}
	out := bits.New(cw.Len() / 20 * 8)
	for w := 0; w < cw.Len()/20; w++ {
		data, _ := cw.Uint(w*20, w*20+8)
		_ = out.SetUint(w*8, 8, data)
	}
	return out, nil
}
