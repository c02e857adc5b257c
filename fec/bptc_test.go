package fec

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/icza/gog"
	"github.com/jancona/lmrdecode/bits"
)

func TestBPTCLayout(t *testing.T) {
	if len(bptcData) != 96 {
		t.Fatalf("%d data positions, want 96", len(bptcData))
	}
	seen := map[int]bool{}
	for i := 0; i < bptcBits; i++ {
		seen[bptcInterleave(i)] = true
	}
	if len(seen) != bptcBits {
		t.Errorf("interleaver hits %d positions, want %d", len(seen), bptcBits)
	}
	// a single data bit sets its row and column parity
	info := bits.New(96)
	gog.Must(0, info.Set(0, true))
	cw := gog.Must(BPTC196{}.Encode(info))
	if w := cw.OnesCount(); w != 20 {
		t.Errorf("weight of a single bit codeword = %d, want 20", w)
	}
}

func TestBPTCDecode(t *testing.T) {
	var b BPTC196
	rnd := rand.New(rand.NewSource(196))
	info := randomBits(rnd, 96)
	cw := gog.Must(b.Encode(info))

	tests := []struct {
		name  string
		flips []int
	}{
		{"clean", nil},
		{"one", []int{5}},
		{"two", []int{5, 100}},
		{"three", []int{17, 150, 60}},
		{"four", []int{3, 60, 120, 190}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rx := cw.Copy()
			for _, f := range tt.flips {
				gog.Must(0, rx.Flip(f))
			}
			got, err := b.Decode(rx)
			if err != nil {
				t.Fatalf("Decode() = %v", err)
			}
			if !got.Equal(cw) {
				t.Errorf("Decode() = %s, want %s", got, cw)
			}
			if got.Corrected() != len(tt.flips) {
				t.Errorf("Corrected() = %d, want %d", got.Corrected(), len(tt.flips))
			}
			if data := gog.Must(b.Info(got)); !data.Equal(info) {
				t.Errorf("Info() = %s, want %s", data, info)
			}
		})
	}
}

func TestBPTCUncorrectable(t *testing.T) {
	var b BPTC196
	cw := gog.Must(b.Encode(bits.New(96)))
	// a 2x2 square of errors inside the data rows defeats both codes
	for _, p := range []int{1 + 15 + 3, 1 + 15 + 4, 1 + 30 + 3, 1 + 30 + 4} {
		gog.Must(0, cw.Flip(bptcInterleave(p)))
	}
	if _, err := b.Decode(cw); !errors.Is(err, ErrUncorrectable) {
		t.Errorf("Decode() = %v, want ErrUncorrectable", err)
	}
	if _, err := b.Decode(bits.New(195)); !errors.Is(err, ErrLength) {
		t.Errorf("Decode(195 bits) = %v, want ErrLength", err)
	}
}
