package fec

import (
	"math/rand"
	"testing"

	"github.com/jancona/lmrdecode/bits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrellisRoundTrip(t *testing.T) {
	tests := []struct {
		code  *TrellisCode
		info  int
		flips []int
	}{
		{P25HalfRate, 96, nil},
		{P25ThreeQuarterRate, 144, nil},
		{P25HalfRate, 96, []int{7, 60, 130, 190}},
		{P25ThreeQuarterRate, 144, []int{7, 60, 130, 190}},
	}
	rnd := rand.New(rand.NewSource(25))
	for _, tt := range tests {
		info := randomBits(rnd, tt.info)
		coded, err := tt.code.Encode(info)
		require.NoError(t, err)
		require.Equal(t, 196, coded.Len(), tt.code.Name)
		for _, f := range tt.flips {
			require.NoError(t, coded.Flip(f))
		}
		got, errs := tt.code.Decode(coded)
		assert.True(t, got.Equal(info), "%s: Decode() = %s, want %s", tt.code.Name, got, info)
		assert.Equal(t, len(tt.flips), errs, tt.code.Name)
	}
}

func TestTrellisFirstSymbols(t *testing.T) {
	// From the zero state every input maps straight through the first table row.
	coded, err := P25HalfRate.Encode(bits.MustParse("01"))
	require.NoError(t, err)
	// input 1 -> point 15 -> 0xc, then flush from state 1 -> point 4 -> 0xe
	assert.Equal(t, "11001110", coded.String())
}

func TestTrellisBadLength(t *testing.T) {
	_, err := P25ThreeQuarterRate.Encode(bits.New(10))
	assert.ErrorIs(t, err, ErrLength)

	info := bits.New(96)
	coded, err := P25HalfRate.Encode(info)
	require.NoError(t, err)
	got, errs := P25HalfRate.Decode(bits.Concat(coded, bits.MustParse("10")))
	assert.True(t, got.Equal(info))
	assert.Equal(t, 2, errs)
}
