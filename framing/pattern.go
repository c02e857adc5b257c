// Package framing finds protocol sync patterns in a symbol stream and
// assembles the bits that follow them into frames.
package framing

import (
	"errors"
	"fmt"
	"math"
	mbits "math/bits"
)

var (
	// ErrPatternTooLong is returned for patterns longer than 64 bits or with an
	// odd number of bits.
	ErrPatternTooLong = errors.New("sync pattern must be an even number of bits up to 64")
	// ErrWindowLength is returned when a window does not match the pattern length.
	ErrWindowLength = errors.New("window length does not match sync pattern")
)

// Alphabet maps a dibit value to its ideal soft symbol.
type Alphabet [4]float32

var (
	// C4FM is the 4-level FSK alphabet shared by P25, DMR and M17.
	C4FM = Alphabet{+1, +3, -1, -3}
	// NXDNPhase is the same ordering expressed as phase in radians.
	NXDNPhase = Alphabet{math.Pi / 4, 3 * math.Pi / 4, -math.Pi / 4, -3 * math.Pi / 4}
)

// Slice returns the dibit whose ideal symbol is nearest to sym.
func (a Alphabet) Slice(sym float32) byte {
	best := byte(0)
	dist := float32(math.Inf(1))
	for d, ref := range a {
		if e := (sym - ref) * (sym - ref); e < dist {
			dist = e
			best = byte(d)
		}
	}
	return best
}

// Symbols expands the dibits of word, most significant first.
func (a Alphabet) Symbols(word uint64, dibits int) []float32 {
	out := make([]float32, dibits)
	for i := range out {
		out[i] = a[(word>>(2*(dibits-1-i)))&3]
	}
	return out
}

// SyncPattern is an immutable sync word with its soft reference.
type SyncPattern struct {
	Name string
	// Bits holds the pattern right justified, first bit most significant.
	Bits   uint64
	Length int
	// MaxBitErrors bounds the Hamming distance accepted by hard detection.
	MaxBitErrors int
	// Threshold is the correlation score at which soft detection fires.
	Threshold float32
	reference []float32
}

func NewSyncPattern(name string, word uint64, length int, alphabet Alphabet, maxBitErrors int, threshold float32) (*SyncPattern, error) {
	if length <= 0 || length > 64 || length%2 != 0 {
		return nil, fmt.Errorf("%s: %d bits: %w", name, length, ErrPatternTooLong)
	}
	if length < 64 && word>>length != 0 {
		return nil, fmt.Errorf("%s: word %#x wider than %d bits: %w", name, word, length, ErrPatternTooLong)
	}
	return &SyncPattern{
		Name:         name,
		Bits:         word,
		Length:       length,
		MaxBitErrors: maxBitErrors,
		Threshold:    threshold,
		reference:    alphabet.Symbols(word, length/2),
	}, nil
}

// mustPattern panics on error. A zero threshold defaults to three quarters of
// the pattern energy.
func mustPattern(name string, word uint64, length int, alphabet Alphabet, maxBitErrors int, threshold float32) *SyncPattern {
	p, err := NewSyncPattern(name, word, length, alphabet, maxBitErrors, threshold)
	if err != nil {
		panic(err)
	}
	if threshold == 0 {
		p.Threshold = 0.75 * p.Energy()
	}
	return p
}

// Symbols is the number of dibit symbols in the pattern.
func (p *SyncPattern) Symbols() int {
	return p.Length / 2
}

// Reference returns a copy of the ideal symbol sequence.
func (p *SyncPattern) Reference() []float32 {
	return append([]float32(nil), p.reference...)
}

// Energy is the score of a noiseless, perfectly aligned pattern.
func (p *SyncPattern) Energy() float32 {
	var e float64
	for _, r := range p.reference {
		e += float64(r) * float64(r)
	}
	return float32(e)
}

func (p *SyncPattern) mask() uint64 {
	if p.Length == 64 {
		return ^uint64(0)
	}
	return 1<<p.Length - 1
}

// Distance is the number of differing bits between the pattern and the low
// Length bits of reg.
func (p *SyncPattern) Distance(reg uint64) int {
	return mbits.OnesCount64((reg ^ p.Bits) & p.mask())
}

// WithMaxBitErrors returns a copy with a different hard-match tolerance.
func (p *SyncPattern) WithMaxBitErrors(n int) *SyncPattern {
	c := *p
	c.MaxBitErrors = n
	return &c
}

// WithThreshold returns a copy with a different soft-match threshold.
func (p *SyncPattern) WithThreshold(t float32) *SyncPattern {
	c := *p
	c.Threshold = t
	return &c
}

func (p *SyncPattern) String() string {
	return p.Name
}

var (
	P25Phase1 = mustPattern("P25 Phase 1", 0x5575F5FF77FF, 48, C4FM, 2, 0)

	DMRBaseData  = mustPattern("DMR BS data", 0xDFF57D75DF5D, 48, C4FM, 4, 0)
	DMRBaseVoice = mustPattern("DMR BS voice", 0x755FD7DF75F7, 48, C4FM, 4, 0)
	DMRMobData   = mustPattern("DMR MS data", 0xD5D7F77FD757, 48, C4FM, 4, 0)
	DMRMobVoice  = mustPattern("DMR MS voice", 0x7F7D5DD57DFD, 48, C4FM, 4, 0)

	// NXDNStandard is the 10-dibit frame sync word.
	NXDNStandard = mustPattern("NXDN standard", 0xCDF59, 20, NXDNPhase, 2, 35)
	// NXDNControl is the preamble followed by the frame sync word, as sent
	// ahead of a control channel burst.
	NXDNControl = mustPattern("NXDN control", 0x5775FDCDF59, 44, NXDNPhase, 3, 30)

	M17LSF    = mustPattern("M17 LSF", 0x55F7, 16, C4FM, 1, 0)
	M17Stream = mustPattern("M17 stream", 0xFF5D, 16, C4FM, 1, 0)
	M17Packet = mustPattern("M17 packet", 0x75FF, 16, C4FM, 1, 0)
	M17BERT   = mustPattern("M17 BERT", 0xDF55, 16, C4FM, 1, 0)
)
