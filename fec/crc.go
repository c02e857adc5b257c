package fec

import (
	"fmt"
	"sync"

	"github.com/jancona/lmrdecode/bits"
	"github.com/sigurn/crc16"
)

// Outcome is the result of checksum verification.
type Outcome int

const (
	Passed Outcome = iota
	Corrected
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Corrected:
		return "corrected"
	default:
		return "failed"
	}
}

// Range is a half-open bit range [Start, End).
type Range struct {
	Start, End int
}

// CRC describes an MSB-first, non-reflected cyclic redundancy check.
// TrialBits is the largest number of flipped bits Verify will try to repair:
// 0 disables correction, 1 tries single bits, 2 also tries pairs.
type CRC struct {
	Name      string
	Width     int
	Poly      uint64
	Init      uint64
	XorOut    uint64
	TrialBits int
}

var (
	CRCM17   = CRC{Name: "M17", Width: 16, Poly: 0x5935, Init: 0xFFFF}
	CRCCCITT = CRC{Name: "CCITT-FALSE", Width: 16, Poly: 0x1021, Init: 0xFFFF}
	CRCP25   = CRC{Name: "P25", Width: 16, Poly: 0x1021, Init: 0, XorOut: 0xFFFF, TrialBits: 1}

	// NXDN checks on the SACCH, FACCH1, UDCH and CAC.
	CRCNXDN6  = CRC{Name: "NXDN-6", Width: 6, Poly: 0x27, Init: 0x3F}
	CRCNXDN12 = CRC{Name: "NXDN-12", Width: 12, Poly: 0x80F, Init: 0xFFF}
	CRCNXDN15 = CRC{Name: "NXDN-15", Width: 15, Poly: 0x4CC5, Init: 0x7FFF}
	CRCNXDN16 = CRC{Name: "NXDN-16", Width: 16, Poly: 0x1021, Init: 0xFFFF}
)

func (c CRC) mask() uint64 {
	if c.Width == 64 {
		return ^uint64(0)
	}
	return 1<<c.Width - 1
}

func (c CRC) validate() error {
	if c.Width < 1 || c.Width > 64 {
		return fmt.Errorf("crc %s: width %d: %w", c.Name, c.Width, ErrInvalidCode)
	}
	if c.Poly == 0 || c.Poly&^c.mask() != 0 {
		return fmt.Errorf("crc %s: polynomial %#x: %w", c.Name, c.Poly, ErrInvalidCode)
	}
	return nil
}

// Checksum computes the CRC of bits [start, end).
func (c CRC) Checksum(v *bits.Vector, start, end int) (uint64, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	if start < 0 || end > v.Len() || start > end {
		return 0, fmt.Errorf("crc range [%d,%d), length %d: %w", start, end, v.Len(), bits.ErrOutOfRange)
	}
	if c.Width == 16 && (end-start)%8 == 0 {
		data, err := v.Slice(start, end)
		if err != nil {
			return 0, err
		}
		return uint64(crc16.Checksum(data.Bytes(), c.table16())), nil
	}
	return c.bitwise(v, start, end), nil
}

// ChecksumBytes computes the CRC of whole bytes.
func (c CRC) ChecksumBytes(b []byte) (uint64, error) {
	v := bits.FromBytes(b)
	return c.Checksum(v, 0, v.Len())
}

func (c CRC) bitwise(v *bits.Vector, start, end int) uint64 {
	mask := c.mask()
	reg := c.Init & mask
	for i := start; i < end; i++ {
		reg = c.step(reg, v.Bit(i))
	}
	return (reg ^ c.XorOut) & mask
}

func (c CRC) step(reg uint64, b bool) uint64 {
	top := (reg>>(c.Width-1))&1 != 0
	reg = (reg << 1) & c.mask()
	if top != b {
		reg ^= c.Poly
	}
	return reg
}

var crc16Tables sync.Map // crc16.Params -> *crc16.Table

func (c CRC) table16() *crc16.Table {
	p := crc16.Params{
		Poly:   uint16(c.Poly),
		Init:   uint16(c.Init),
		XorOut: uint16(c.XorOut),
		Name:   c.Name,
	}
	if t, ok := crc16Tables.Load(p); ok {
		return t.(*crc16.Table)
	}
	t, _ := crc16Tables.LoadOrStore(p, crc16.MakeTable(p))
	return t.(*crc16.Table)
}

// Verify checks the CRC stored in field against the bits that precede it.
// Bits after field are carried along untouched. On Corrected the returned
// vector is a repaired copy whose corrected count includes the flips; on
// Passed and Failed it is an unmodified copy.
func (c CRC) Verify(msg *bits.Vector, field Range) (Outcome, *bits.Vector, error) {
	if err := c.validate(); err != nil {
		return Failed, nil, err
	}
	if field.Start < 0 || field.End > msg.Len() || field.End-field.Start != c.Width {
		return Failed, nil, fmt.Errorf("crc field [%d,%d) in %d bits: %w", field.Start, field.End, msg.Len(), bits.ErrOutOfRange)
	}
	got, err := c.Checksum(msg, 0, field.Start)
	if err != nil {
		return Failed, nil, err
	}
	want, err := msg.Uint(field.Start, field.End)
	if err != nil {
		return Failed, nil, err
	}
	out := msg.Copy()
	syndrome := got ^ want
	if syndrome == 0 {
		return Passed, out, nil
	}
	if c.TrialBits < 1 {
		return Failed, out, nil
	}

	contrib := c.contributions(field.Start)
	// Error syndromes of the data bits come from the table, field bits flip
	// the stored value directly.
	syn := func(p int) uint64 {
		if p < field.Start {
			return contrib[p]
		}
		return 1 << (c.Width - 1 - (p - field.Start))
	}
	total := field.Start + c.Width

	var found []int
	for p := 0; p < total; p++ {
		if syn(p) == syndrome {
			found = append(found, p)
		}
	}
	if len(found) == 1 {
		_ = out.Flip(found[0])
		out.AddCorrected(1)
		return Corrected, out, nil
	}
	if len(found) > 1 || c.TrialBits < 2 {
		return Failed, out, nil
	}

	index := make(map[uint64][]int, total)
	for p := 0; p < total; p++ {
		index[syn(p)] = append(index[syn(p)], p)
	}
	var pairs [][2]int
	for a := 0; a < total && len(pairs) < 2; a++ {
		for _, b := range index[syndrome^syn(a)] {
			if b > a {
				pairs = append(pairs, [2]int{a, b})
			}
		}
	}
	if len(pairs) != 1 {
		return Failed, out, nil
	}
	_ = out.Flip(pairs[0][0])
	_ = out.Flip(pairs[0][1])
	out.AddCorrected(2)
	return Corrected, out, nil
}

type contributionKey struct {
	width  int
	poly   uint64
	length int
}

var (
	contributionMu     sync.Mutex
	contributionTables = make(map[contributionKey][]uint64)
)

// contributions returns, for a message of length data bits, the change in the
// final register caused by flipping each data bit. The CRC is affine, so the
// change does not depend on the message, Init or XorOut.
func (c CRC) contributions(length int) []uint64 {
	key := contributionKey{c.Width, c.Poly, length}
	contributionMu.Lock()
	defer contributionMu.Unlock()
	if t, ok := contributionTables[key]; ok {
		return t
	}
	t := make([]uint64, length)
	if length > 0 {
		t[length-1] = c.Poly
		for p := length - 2; p >= 0; p-- {
			t[p] = c.step(t[p+1], false)
		}
	}
	contributionTables[key] = t
	return t
}
