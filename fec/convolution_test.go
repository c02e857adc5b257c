package fec

import (
	"math/rand"
	"testing"

	"github.com/icza/gog"
	"github.com/jancona/lmrdecode/bits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBits(rnd *rand.Rand, n int) *bits.Vector {
	v := bits.New(n)
	for i := 0; i < n; i++ {
		gog.Must(0, v.Set(i, rnd.Intn(2) == 1))
	}
	return v
}

func TestConvolutionalEncodeReference(t *testing.T) {
	code := MustConvolutionalCode("M17 unpunctured", 5, []uint32{0x19, 0x17}, nil, true)
	got := code.Encode(bits.MustParse("10110101"))
	assert.Equal(t, "110110001100000111101011", got.String())
}

func TestConvolutionalCodedLength(t *testing.T) {
	tests := []struct {
		code *ConvolutionalCode
		info int
		want int
	}{
		{M17LSF, 240, 368},
		{M17Packet, 206, 368},
		{M17Stream, 144, 272},
		{Rate12K7, 96, 204},
		{Rate34K7, 96, 136},
		{NXDNSACCH, 32, 60},
		{NXDNFACCH1, 92, 144},
		{NXDNUDCH, 199, 348},
		{NXDNUDCH, 171, 300},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.CodedLength(tt.info), tt.code.Name)
		assert.Equal(t, tt.want, tt.code.Encode(bits.New(tt.info)).Len(), tt.code.Name)
	}
}

func TestConvolutionalCleanRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	codes := []*ConvolutionalCode{Rate12K7, Rate34K7, M17LSF, M17Stream, M17Packet, NXDNSACCH, NXDNFACCH1, NXDNUDCH}
	for _, code := range codes {
		for n := 100; n <= 105; n++ {
			info := randomBits(rnd, n)
			coded := code.Encode(info)
			got, errs := code.Decode(coded)
			require.Truef(t, got.Equal(info), "%s n=%d: Decode() = %s, want %s", code.Name, n, got, info)
			assert.Zerof(t, errs, "%s n=%d", code.Name, n)
			assert.Zero(t, got.Corrected())
		}
	}
}

func TestConvolutionalCorrectsErrors(t *testing.T) {
	tests := []struct {
		name  string
		code  *ConvolutionalCode
		info  int
		flips []int
	}{
		{"rate 1/2", Rate12K7, 120, []int{20, 100, 170}},
		{"rate 3/4", Rate34K7, 120, []int{15, 90}},
		{"M17 LSF", M17LSF, 240, []int{10, 100, 200, 300}},
		{"M17 packet", M17Packet, 206, []int{5, 60, 150, 250, 330}},
		{"NXDN FACCH1", NXDNFACCH1, 92, []int{10, 70, 130}},
		{"NXDN UDCH", NXDNUDCH, 199, []int{12, 120, 240, 330}},
	}
	rnd := rand.New(rand.NewSource(17))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := randomBits(rnd, tt.info)
			rx := tt.code.Encode(info)
			for _, f := range tt.flips {
				require.NoError(t, rx.Flip(f))
			}
			got, errs := tt.code.Decode(rx)
			assert.True(t, got.Equal(info), "Decode() = %s, want %s", got, info)
			assert.Equal(t, len(tt.flips), errs)
			assert.Equal(t, len(tt.flips), got.Corrected())
		})
	}
}

func TestConvolutionalTruncatedInput(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	info := randomBits(rnd, 50)
	coded := Rate12K7.Encode(info)
	rx := bits.Concat(coded, bits.MustParse("1"))
	got, errs := Rate12K7.Decode(rx)
	assert.True(t, got.Equal(info))
	assert.Equal(t, 1, errs)
}

func TestConvolutionalTrailingBit(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	tests := []struct {
		code *ConvolutionalCode
		info int
	}{
		{Rate12K7, 40},
		{Rate34K7, 40},
		{Rate34K7, 41},
		{M17LSF, 240},
		{M17Packet, 206},
	}
	for _, tt := range tests {
		info := randomBits(rnd, tt.info)
		rx := bits.Concat(tt.code.Encode(info), bits.MustParse("1"))
		got, errs := tt.code.Decode(rx)
		assert.Truef(t, got.Equal(info), "%s n=%d: Decode() = %s, want %s", tt.code.Name, tt.info, got, info)
		assert.Equalf(t, 1, errs, "%s n=%d", tt.code.Name, tt.info)
	}
}

// A codeword whose last step has a punctured position keeps that step.
func TestConvolutionalPuncturedLastStep(t *testing.T) {
	rnd := rand.New(rand.NewSource(9))
	info := randomBits(rnd, 41)
	coded := Rate34K7.Encode(info)
	require.Equal(t, 63, coded.Len())
	got, errs := Rate34K7.Decode(coded)
	assert.True(t, got.Equal(info), "Decode() = %s, want %s", got, info)
	assert.Zero(t, errs)
}

func TestConvolutionalDecodeSoft(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	info := randomBits(rnd, 240)
	coded := M17LSF.Encode(info)
	soft := make([]float32, coded.Len())
	for i := range soft {
		if coded.Bit(i) {
			soft[i] = softTrue
		}
	}
	got, cost := M17LSF.DecodeSoft(soft)
	assert.True(t, got.Equal(info))
	assert.InDelta(t, 0.0, cost, 1e-9)

	// weaken some bits without crossing the decision threshold
	for _, i := range []int{3, 40, 77, 150, 222, 301} {
		soft[i] = 0.5 + (soft[i]-0.5)*0.2
	}
	got, cost = M17LSF.DecodeSoft(soft)
	assert.True(t, got.Equal(info))
	assert.InDelta(t, 6*0.4, cost, 1e-5)
}

func TestConvolutionalInvalid(t *testing.T) {
	_, err := NewConvolutionalCode("K too small", 1, []uint32{1}, nil, true)
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = NewConvolutionalCode("wide polynomial", 5, []uint32{0x19, 0x37}, nil, true)
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = NewConvolutionalCode("all punctured", 5, []uint32{0x19, 0x17}, PuncturePattern{false, false}, true)
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = NewConvolutionalCode("no polynomials", 5, nil, nil, true)
	assert.ErrorIs(t, err, ErrInvalidCode)
}
