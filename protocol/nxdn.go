package protocol

import (
	"errors"
	"fmt"
	mbits "math/bits"

	"github.com/jancona/lmrdecode/bits"
	"github.com/jancona/lmrdecode/fec"
)

// What follows the link information channel of an NXDN frame.
const (
	nxdnCAC = iota
	nxdnUDCH
	nxdnFACCH1Both
	nxdnFACCH1First
	nxdnFACCH1Second
	nxdnVoice
	nxdnOther
)

const (
	nxdnLICHBits   = 16
	nxdnSACCHEnd   = nxdnLICHBits + 60
	nxdnFACCH1Bits = 144
	nxdnCACEnd     = nxdnLICHBits + 300
)

var errLICHParity = errors.New("lich parity")

// The LICH sends each of its 8 bits as the first bit of a dibit.
var nxdnLICHRanges = func() []fec.Range {
	r := make([]fec.Range, 8)
	for i := range r {
		r[i] = fec.Range{Start: 2 * i, End: 2*i + 1}
	}
	return r
}()

// nxdnLICH reads the 7-bit LICH of a descrambled frame, checking the parity
// bit over the RF channel and functional channel fields.
func nxdnLICH(v *bits.Vector) (uint8, error) {
	l, _, err := Gather{Ranges: nxdnLICHRanges}.Apply(v)
	if err != nil {
		return 0, err
	}
	b, _ := l.Uint(0, 8)
	if uint8(mbits.OnesCount8(uint8(b>>4)))&1 != uint8(b)&1 {
		return 0, fmt.Errorf("%#02x: %w", b, errLICHParity)
	}
	return uint8(b >> 1), nil
}

// nxdnKind classifies a frame by its LICH.
func nxdnKind(v *bits.Vector) (int, error) {
	l, err := nxdnLICH(v)
	if err != nil {
		return 0, err
	}
	rf, fc, opt, dir := l>>5, l>>3&3, l>>1&3, l&1
	switch {
	case rf == 0 && dir == 1:
		return nxdnCAC, nil
	case rf == 0:
		return nxdnOther, nil
	case fc == 1:
		return nxdnUDCH, nil
	}
	return [...]int{nxdnFACCH1Both, nxdnFACCH1First, nxdnFACCH1Second, nxdnVoice}[opt], nil
}

// nxdnChain descrambles a frame and decodes the channels its LICH names.
// Voice is not decoded.
func nxdnChain() Chain {
	lich := Segment{Label: "lich", Start: 0, End: nxdnLICHBits, Chain: Chain{
		Gather{Label: "lich bits", Ranges: nxdnLICHRanges},
	}}
	sacch := Segment{Label: "sacch", Start: nxdnLICHBits, End: nxdnSACCHEnd, Chain: Chain{
		Permute{Label: "nxdn deinterleave", Perm: fec.NXDNSACCHDeinterleaver},
		Viterbi{Code: fec.NXDNSACCH},
		CRCStep{CRC: fec.CRCNXDN6},
	}}
	facch1 := func(label string, start int) Segment {
		return Segment{Label: label, Start: start, End: start + nxdnFACCH1Bits, Chain: Chain{
			Permute{Label: "nxdn deinterleave", Perm: fec.NXDNFACCH1Deinterleaver},
			Viterbi{Code: fec.NXDNFACCH1},
			CRCStep{CRC: fec.CRCNXDN12},
		}}
	}
	first := facch1("facch1", nxdnSACCHEnd)
	second := facch1("facch1 second", nxdnSACCHEnd+nxdnFACCH1Bits)

	return Chain{
		Descramble{},
		Select{
			Label: "lich",
			Key:   nxdnKind,
			Cases: map[int]Case{
				nxdnCAC: {Label: "cac", Chain: Chain{Segments{
					lich,
					{Label: "cac", Start: nxdnLICHBits, End: nxdnCACEnd, Chain: Chain{
						Permute{Label: "nxdn deinterleave", Perm: fec.NXDNCACDeinterleaver},
						Viterbi{Code: fec.NXDNUDCH},
						// three null bits follow the checksum
						Slice{Start: 0, End: 168},
						CRCStep{CRC: fec.CRCNXDN16},
					}},
				}}},
				nxdnUDCH: {Label: "udch", Chain: Chain{Segments{
					lich,
					{Label: "udch", Start: nxdnLICHBits, End: nxdnFrameBits, Chain: Chain{
						Permute{Label: "nxdn deinterleave", Perm: fec.NXDNUDCHDeinterleaver},
						Viterbi{Code: fec.NXDNUDCH},
						CRCStep{CRC: fec.CRCNXDN15},
					}},
				}}},
				nxdnFACCH1Both:   {Label: "facch1", Chain: Chain{Segments{lich, sacch, first, second}}},
				nxdnFACCH1First:  {Label: "facch1 first", Chain: Chain{Segments{lich, sacch, first}}},
				nxdnFACCH1Second: {Label: "facch1 second", Chain: Chain{Segments{lich, sacch, second}}},
				nxdnVoice:        {Label: "voice", Chain: Chain{Segments{lich, sacch}}},
			},
			Default: Case{Label: "other", Chain: Chain{Segments{
				lich,
				{Label: "payload", Start: nxdnLICHBits, End: nxdnFrameBits},
			}}},
		},
	}
}
