package protocol

import (
	"errors"
	mbits "math/bits"
	"math/rand"
	"testing"

	"github.com/icza/gog"
	"github.com/jancona/lmrdecode/bits"
	"github.com/jancona/lmrdecode/fec"
	"github.com/jancona/lmrdecode/framing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nxdnLICHField returns the parity completed LICH and its 16 on-air bits.
func nxdnLICHField(l7 uint8) (*bits.Vector, *bits.Vector) {
	l8 := l7 << 1
	if mbits.OnesCount8(l8>>4)%2 == 1 {
		l8 |= 1
	}
	field := bits.New(16)
	for i := 0; i < 8; i++ {
		_ = field.Set(2*i, l8>>(7-i)&1 != 0)
		_ = field.Set(2*i+1, true)
	}
	return bits.FromUint(uint64(l8), 8), field
}

// nxdnChannel checksums msg, codes it and interleaves it for the air. nulls
// zero bits go between the checksum and the tail.
func nxdnChannel(t *testing.T, msg *bits.Vector, crc fec.CRC, code *fec.ConvolutionalCode, deint fec.Permutation, nulls int) (*bits.Vector, *bits.Vector) {
	t.Helper()
	sum := gog.Must(crc.Checksum(msg, 0, msg.Len()))
	checked := bits.Concat(msg, bits.FromUint(sum, crc.Width))
	coded := code.Encode(bits.Concat(checked, bits.New(nulls)))
	require.Equal(t, len(deint), coded.Len())
	return gog.Must(deint.Inverse().Apply(coded)), checked
}

// nxdnFrame places fields after the LICH, fills the rest with filler and
// scrambles the 364 bits.
func nxdnFrame(t *testing.T, lich *bits.Vector, filler *bits.Vector, fields ...*bits.Vector) *bits.Vector {
	t.Helper()
	frame := bits.Concat(append([]*bits.Vector{lich}, fields...)...)
	if frame.Len() < 364 {
		frame = bits.Concat(frame, gog.Must(filler.Slice(0, 364-frame.Len())))
	}
	require.Equal(t, 364, frame.Len())
	return gog.Must(fec.NXDNScramble(frame))
}

func TestNXDNCAC(t *testing.T) {
	rnd := rand.New(rand.NewSource(152))
	lich, lichField := nxdnLICHField(0x01)
	tx, checked := nxdnChannel(t, randomVector(rnd, 152), fec.CRCNXDN16, fec.NXDNUDCH, fec.NXDNCACDeinterleaver, 3)
	want := bits.Concat(lich, checked)

	for _, p := range []*Profile{NXDN(), NXDNControl()} {
		pattern := p.Syncs[0].Pattern
		frame := nxdnFrame(t, lichField, randomVector(rnd, 48), tx)
		r := p.Decode(framing.Frame{Bits: frame, Pattern: pattern})
		require.NoError(t, r.Err)
		assert.Equal(t, Valid, r.Validity)
		assert.True(t, r.Bits.Equal(want), "%s: bits = %s, want %s", p.Name, r.Bits, want)

		flip(t, frame, 30, 200)
		r = p.Decode(framing.Frame{Bits: frame, Pattern: pattern})
		require.NoError(t, r.Err)
		assert.Equal(t, Corrected, r.Validity)
		assert.Equal(t, 2, r.Corrected)
		assert.True(t, r.Bits.Equal(want))
	}
}

func TestNXDNTrafficChannels(t *testing.T) {
	rnd := rand.New(rand.NewSource(364))
	sacch, sacchMsg := nxdnChannel(t, randomVector(rnd, 26), fec.CRCNXDN6, fec.NXDNSACCH, fec.NXDNSACCHDeinterleaver, 0)
	f1, f1Msg := nxdnChannel(t, randomVector(rnd, 80), fec.CRCNXDN12, fec.NXDNFACCH1, fec.NXDNFACCH1Deinterleaver, 0)
	f2, f2Msg := nxdnChannel(t, randomVector(rnd, 80), fec.CRCNXDN12, fec.NXDNFACCH1, fec.NXDNFACCH1Deinterleaver, 0)
	udch, udchMsg := nxdnChannel(t, randomVector(rnd, 184), fec.CRCNXDN15, fec.NXDNUDCH, fec.NXDNUDCHDeinterleaver, 0)
	voice := randomVector(rnd, 288)

	tests := []struct {
		name   string
		l7     uint8
		fields []*bits.Vector
		want   []*bits.Vector
		last   string
	}{
		{"facch1 both", 0x40, []*bits.Vector{sacch, f1, f2}, []*bits.Vector{sacchMsg, f1Msg, f2Msg}, "lich=facch1/facch1 second/crc NXDN-12"},
		{"facch1 first", 0x42, []*bits.Vector{sacch, f1, gog.Must(voice.Slice(144, 288))}, []*bits.Vector{sacchMsg, f1Msg}, "lich=facch1 first/facch1/crc NXDN-12"},
		{"facch1 second", 0x44, []*bits.Vector{sacch, gog.Must(voice.Slice(0, 144)), f2}, []*bits.Vector{sacchMsg, f2Msg}, "lich=facch1 second/facch1 second/crc NXDN-12"},
		{"voice", 0x46, []*bits.Vector{sacch, voice}, []*bits.Vector{sacchMsg}, "lich=voice/sacch/crc NXDN-6"},
		{"udch", 0x48, []*bits.Vector{udch}, []*bits.Vector{udchMsg}, "lich=udch/udch/crc NXDN-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lich, field := nxdnLICHField(tt.l7)
			frame := nxdnFrame(t, field, nil, tt.fields...)
			r := NXDN().Decode(framing.Frame{Bits: frame, Pattern: framing.NXDNStandard})
			require.NoError(t, r.Err)
			assert.Equal(t, Valid, r.Validity)
			want := bits.Concat(append([]*bits.Vector{lich}, tt.want...)...)
			assert.True(t, r.Bits.Equal(want), "bits = %s, want %s", r.Bits, want)
			assert.Equal(t, tt.last, r.Steps[len(r.Steps)-1].Name)
		})
	}
}

func TestNXDNPassThrough(t *testing.T) {
	rnd := rand.New(rand.NewSource(348))
	payload := randomVector(rnd, 348)
	lich, field := nxdnLICHField(0x00)
	frame := nxdnFrame(t, field, nil, payload)
	r := NXDN().Decode(framing.Frame{Bits: frame, Pattern: framing.NXDNStandard})
	require.NoError(t, r.Err)
	assert.Equal(t, Valid, r.Validity)
	assert.True(t, r.Bits.Equal(bits.Concat(lich, payload)))
}

func TestNXDNBadLICH(t *testing.T) {
	rnd := rand.New(rand.NewSource(16))
	_, field := nxdnLICHField(0x01)
	frame := nxdnFrame(t, field, randomVector(rnd, 348))
	// an error in the RF channel field breaks the parity
	flip(t, frame, 0)
	r := NXDN().Decode(framing.Frame{Bits: frame, Pattern: framing.NXDNStandard})
	assert.Equal(t, Invalid, r.Validity)
	assert.True(t, errors.Is(r.Err, errLICHParity), "err = %v", r.Err)
	require.Len(t, r.Steps, 2)
	assert.Equal(t, "lich", r.Steps[1].Name)
}

func TestNXDNKind(t *testing.T) {
	tests := []struct {
		l7   uint8
		want int
	}{
		{0x01, nxdnCAC},
		{0x00, nxdnOther},
		{0x38, nxdnFACCH1Both},
		{0x32, nxdnFACCH1First},
		{0x34, nxdnFACCH1Second},
		{0x36, nxdnVoice},
		{0x48, nxdnUDCH},
	}
	for _, tt := range tests {
		_, field := nxdnLICHField(tt.l7)
		got, err := nxdnKind(bits.Concat(field, bits.New(348)))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "lich %#02x", tt.l7)
	}
}

func TestNXDNChecksumTrials(t *testing.T) {
	rnd := rand.New(rand.NewSource(6))
	msg := randomVector(rnd, 184)
	sum := gog.Must(fec.CRCNXDN15.Checksum(msg, 0, msg.Len()))
	checked := bits.Concat(msg, bits.FromUint(sum, 15))
	sent := checked.Copy()
	flip(t, sent, 100)
	tx := gog.Must(fec.NXDNUDCHDeinterleaver.Inverse().Apply(fec.NXDNUDCH.Encode(sent)))
	lich, field := nxdnLICHField(0x48)
	frame := nxdnFrame(t, field, nil, tx)

	p := NXDN()
	r := p.Decode(framing.Frame{Bits: frame, Pattern: framing.NXDNStandard})
	assert.Equal(t, Invalid, r.Validity)
	assert.True(t, errors.Is(r.Err, fec.ErrChecksum), "err = %v", r.Err)

	// the setting reaches the chains behind the LICH selection
	p.SetCRCTrialBits(1)
	r = p.Decode(framing.Frame{Bits: frame, Pattern: framing.NXDNStandard})
	require.NoError(t, r.Err)
	assert.Equal(t, Corrected, r.Validity)
	assert.True(t, r.Bits.Equal(bits.Concat(lich, checked)))
}
