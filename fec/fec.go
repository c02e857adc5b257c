// Package fec implements the forward error correction codes used by the
// land mobile radio protocols: convolutional and trellis codes with Viterbi
// decoding, BCH and Golay block codes, CRC verification with trial
// correction, and the bit permutations that precede them.
//
// All code values are immutable after construction and may be shared
// between goroutines.
package fec

import (
	"errors"

	"github.com/jancona/lmrdecode/bits"
	"golang.org/x/exp/constraints"
)

var (
	// ErrUncorrectable means the received word is farther than the code's
	// correction radius. The returned bits must not be trusted.
	ErrUncorrectable = errors.New("uncorrectable codeword")
	// ErrChecksum is reported when a CRC could not be verified or repaired.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrInvalidCode is returned when code parameters are inconsistent.
	ErrInvalidCode = errors.New("invalid code parameters")
	// ErrLength is returned when an input has the wrong number of bits.
	ErrLength = errors.New("wrong input length")
)

// TrellisDecoder is satisfied by the Viterbi decoders. They never fail: the
// int result is the number of received bits that disagree with the decoded
// path.
type TrellisDecoder interface {
	Decode(coded *bits.Vector) (*bits.Vector, int)
}

// BlockDecoder is satisfied by the algebraic block codes.
type BlockDecoder interface {
	Decode(codeword *bits.Vector) (*bits.Vector, error)
}

type metric interface {
	constraints.Integer | constraints.Float
}

func parity(x uint32) uint8 {
	x ^= x >> 16
	x ^= x >> 8
	x ^= x >> 4
	x ^= x >> 2
	x ^= x >> 1
	return uint8(x & 1)
}
