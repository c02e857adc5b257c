package framing

import (
	"fmt"
	"strconv"
	"strings"
)

// Lanes is the number of independent partial sums the correlator keeps while
// scoring. Wider strategies let the compiler vectorize the inner loop; all
// strategies return the same score to within float32 rounding.
type Lanes int

const (
	Scalar  Lanes = 1
	Lanes2  Lanes = 2
	Lanes4  Lanes = 4
	Lanes8  Lanes = 8
	Lanes16 Lanes = 16
)

// AllLanes lists every supported strategy, narrowest first.
var AllLanes = []Lanes{Scalar, Lanes2, Lanes4, Lanes8, Lanes16}

func (l Lanes) valid() bool {
	switch l {
	case Scalar, Lanes2, Lanes4, Lanes8, Lanes16:
		return true
	}
	return false
}

func (l Lanes) String() string {
	if l == Scalar {
		return "scalar"
	}
	return strconv.Itoa(int(l))
}

// ParseLanes accepts "scalar" or a lane count.
func ParseLanes(s string) (Lanes, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "scalar" || s == "" {
		return Scalar, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || !Lanes(n).valid() {
		return 0, fmt.Errorf("unsupported lane width %q", s)
	}
	return Lanes(n), nil
}

// Correlator scores the most recent symbols against one sync pattern.
type Correlator struct {
	pattern *SyncPattern
	lanes   int
	n       int
	ref     []float32 // reference, zero padded to a lane multiple
	buf     []float32 // each symbol stored at p and p+n
	pos     int
	scratch []float32
}

func NewCorrelator(p *SyncPattern, lanes Lanes) (*Correlator, error) {
	if !lanes.valid() {
		return nil, fmt.Errorf("unsupported lane width %d", lanes)
	}
	n := p.Symbols()
	padded := (n + int(lanes) - 1) / int(lanes) * int(lanes)
	ref := make([]float32, padded)
	copy(ref, p.reference)
	return &Correlator{
		pattern: p,
		lanes:   int(lanes),
		n:       n,
		ref:     ref,
		buf:     make([]float32, 2*n),
		scratch: make([]float32, padded),
	}, nil
}

func (c *Correlator) Pattern() *SyncPattern {
	return c.pattern
}

// Score correlates a chronological window of exactly Symbols() values.
func (c *Correlator) Score(window []float32) (float32, error) {
	if len(window) != c.n {
		return 0, fmt.Errorf("%s: window of %d symbols, want %d: %w", c.pattern.Name, len(window), c.n, ErrWindowLength)
	}
	copy(c.scratch, window)
	return dot(c.lanes, c.ref, c.scratch), nil
}

// Process adds one symbol and returns the score of the latest window. Until
// the window has filled, missing symbols count as zero.
func (c *Correlator) Process(sym float32) float32 {
	c.buf[c.pos] = sym
	c.buf[c.pos+c.n] = sym
	c.pos++
	if c.pos == c.n {
		c.pos = 0
	}
	copy(c.scratch, c.buf[c.pos:c.pos+c.n])
	return dot(c.lanes, c.ref, c.scratch)
}

// Reset forgets all buffered symbols.
func (c *Correlator) Reset() {
	for i := range c.buf {
		c.buf[i] = 0
	}
	c.pos = 0
}

// dot accumulates width interleaved partial sums and adds them at the end.
// len(ref) and len(x) are equal multiples of width; padding is zero.
func dot(width int, ref, x []float32) float32 {
	var acc [16]float64
	for i := 0; i < len(ref); i += width {
		r := ref[i : i+width]
		v := x[i : i+width]
		for l := range r {
			acc[l] += float64(r[l]) * float64(v[l])
		}
	}
	var sum float64
	for l := 0; l < width; l++ {
		sum += acc[l]
	}
	return float32(sum)
}
