package fec

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/icza/gog"
	"github.com/jancona/lmrdecode/bits"
)

func TestHammingCorrectsEveryPosition(t *testing.T) {
	rnd := rand.New(rand.NewSource(15))
	for _, h := range []*Hamming{Hamming15_11, Hamming13_9} {
		info := randomBits(rnd, h.K*3)
		cw := gog.Must(h.Encode(info))
		if cw.Len() != h.N()*3 {
			t.Fatalf("%s: Encode() length = %d, want %d", h.Name, cw.Len(), h.N()*3)
		}
		for p := 0; p < cw.Len(); p++ {
			rx := cw.Copy()
			gog.Must(0, rx.Flip(p))
			got, err := h.Decode(rx)
			if err != nil {
				t.Fatalf("%s: Decode() with bit %d flipped: %v", h.Name, p, err)
			}
			if !got.Equal(cw) || got.Corrected() != 1 {
				t.Fatalf("%s: Decode() with bit %d flipped = %s (%d corrected)", h.Name, p, got, got.Corrected())
			}
		}
		if data := gog.Must(h.Info(cw)); !data.Equal(info) {
			t.Errorf("%s: Info() = %s, want %s", h.Name, data, info)
		}
	}
}

func TestHammingUncorrectable(t *testing.T) {
	// a shortened code leaves syndromes that match no single error
	found := false
	for a := 0; a < 13 && !found; a++ {
		for b := a + 1; b < 13; b++ {
			rx := bits.New(13)
			gog.Must(0, rx.Flip(a))
			gog.Must(0, rx.Flip(b))
			if _, err := Hamming13_9.Decode(rx); err != nil {
				if !errors.Is(err, ErrUncorrectable) {
					t.Fatalf("Decode() = %v, want ErrUncorrectable", err)
				}
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("no double error was detected")
	}
	if _, err := Hamming15_11.Decode(bits.New(14)); !errors.Is(err, ErrLength) {
		t.Errorf("Decode(14 bits) = %v, want ErrLength", err)
	}
}

func TestHammingInvalid(t *testing.T) {
	if _, err := NewHamming("repeated column", 2, [][]int{{0, 1}}); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("NewHamming() = %v, want ErrInvalidCode", err)
	}
	if _, err := NewHamming("out of range", 4, [][]int{{0, 4}, {1}, {2}}); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("NewHamming() = %v, want ErrInvalidCode", err)
	}
}
