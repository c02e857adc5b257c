package protocol

import (
	"errors"
	"fmt"

	"github.com/jancona/lmrdecode/bits"
	"github.com/jancona/lmrdecode/fec"
)

// Step is one stage of a decode chain. Apply returns the transformed bits and
// the number of bit errors it corrected. A step that fails may still return
// its best effort output.
type Step interface {
	Name() string
	Apply(v *bits.Vector) (*bits.Vector, int, error)
}

// Validity summarizes a chain run.
type Validity int

const (
	Valid Validity = iota
	Corrected
	Invalid
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Corrected:
		return "corrected"
	default:
		return "invalid"
	}
}

func (v Validity) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

type StepResult struct {
	Name      string
	Corrected int
	Err       error
}

// Result is the outcome of running a chain over one frame. Bits holds the
// output of the last step that ran; when Validity is Invalid it must not be
// trusted.
type Result struct {
	Bits      *bits.Vector
	Corrected int
	Validity  Validity
	Steps     []StepResult
	Err       error
}

// Chain is an ordered list of steps. An empty chain passes frames through.
type Chain []Step

// nested steps run chains of their own and report those steps, with their
// errors already labeled.
type nested interface {
	run(v *bits.Vector) (*bits.Vector, int, []StepResult, error)
}

// Run applies every step in order and stops at the first failure.
func (c Chain) Run(v *bits.Vector) Result {
	r := Result{Bits: v.Copy()}
	for _, s := range c {
		var (
			out *bits.Vector
			n   int
			err error
		)
		ns, isNested := s.(nested)
		if isNested {
			var steps []StepResult
			out, n, steps, err = ns.run(r.Bits)
			r.Steps = append(r.Steps, steps...)
		} else {
			out, n, err = s.Apply(r.Bits)
			r.Steps = append(r.Steps, StepResult{Name: s.Name(), Corrected: n, Err: err})
		}
		r.Corrected += n
		if out != nil {
			r.Bits = out
		}
		if err != nil {
			if isNested {
				r.Err = err
			} else {
				r.Err = fmt.Errorf("%s: %w", s.Name(), err)
			}
			break
		}
	}
	if d := r.Corrected - r.Bits.Corrected(); d > 0 {
		r.Bits.AddCorrected(d)
	}
	switch {
	case r.Err != nil:
		r.Validity = Invalid
	case r.Corrected > 0:
		r.Validity = Corrected
	default:
		r.Validity = Valid
	}
	return r
}

// Slice keeps bits [Start, End).
type Slice struct {
	Start, End int
}

func (s Slice) Name() string {
	return fmt.Sprintf("slice [%d,%d)", s.Start, s.End)
}

func (s Slice) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	out, err := v.Slice(s.Start, s.End)
	return out, 0, err
}

// StripStatus removes interleaved status dibits.
type StripStatus struct {
	Period, Offset int
}

func (s StripStatus) Name() string {
	return "strip status"
}

func (s StripStatus) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	out, err := fec.StripStatus(v, s.Period, s.Offset)
	return out, 0, err
}

type Permute struct {
	Label string
	Perm  fec.Permutation
}

func (p Permute) Name() string {
	return p.Label
}

func (p Permute) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	out, err := p.Perm.Apply(v)
	return out, 0, err
}

// Gather concatenates bit ranges of the input, such as the halves of a field
// split around a sync word.
type Gather struct {
	Label  string
	Ranges []fec.Range
}

func (g Gather) Name() string {
	return g.Label
}

func (g Gather) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	parts := make([]*bits.Vector, 0, len(g.Ranges))
	for _, r := range g.Ranges {
		p, err := v.Slice(r.Start, r.End)
		if err != nil {
			return nil, 0, err
		}
		parts = append(parts, p)
	}
	out := bits.Concat(parts...)
	out.AddCorrected(v.Corrected() - out.Corrected())
	return out, 0, nil
}

// Descramble removes the NXDN PN9 scrambler.
type Descramble struct{}

func (Descramble) Name() string {
	return "descramble"
}

func (Descramble) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	out, err := fec.NXDNScramble(v)
	return out, 0, err
}

// Derandomize removes the M17 decorrelator sequence.
type Derandomize struct{}

func (Derandomize) Name() string {
	return "derandomize"
}

func (Derandomize) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	out, err := fec.M17Randomize(v)
	return out, 0, err
}

type Viterbi struct {
	Code *fec.ConvolutionalCode
}

func (s Viterbi) Name() string {
	return s.Code.Name
}

func (s Viterbi) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	out, n := s.Code.Decode(v)
	return out, n, nil
}

type Trellis struct {
	Code *fec.TrellisCode
}

func (s Trellis) Name() string {
	return s.Code.Name
}

func (s Trellis) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	out, n := s.Code.Decode(v)
	return out, n, nil
}

// BCHStep decodes the first N bits as a codeword and outputs its information
// bits. Bits past the codeword, such as an appended parity bit, are dropped.
type BCHStep struct {
	Code *fec.BCH
}

func (s BCHStep) Name() string {
	return s.Code.Name
}

func (s BCHStep) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	cw, err := v.Slice(0, s.Code.N)
	if err != nil {
		return nil, 0, err
	}
	fixed, derr := s.Code.Decode(cw)
	if fixed == nil {
		return nil, 0, derr
	}
	info, err := s.Code.Info(fixed)
	if err != nil {
		return nil, 0, err
	}
	return info, fixed.Corrected(), derr
}

// GolayStep corrects a run of Golay(24,12) words and outputs their data bits.
type GolayStep struct{}

func (GolayStep) Name() string {
	return "golay"
}

func (GolayStep) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	fixed, err := fec.Golay24{}.Decode(v)
	if fixed == nil {
		return nil, 0, err
	}
	info, ierr := fec.Golay24{}.Info(fixed)
	if ierr != nil {
		return nil, 0, ierr
	}
	return info, fixed.Corrected(), err
}

// Golay20Step corrects a run of Golay(20,8) words and outputs their data
// bits.
type Golay20Step struct{}

func (Golay20Step) Name() string {
	return "golay(20,8)"
}

func (Golay20Step) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	fixed, err := fec.Golay20{}.Decode(v)
	if fixed == nil {
		return nil, 0, err
	}
	info, ierr := fec.Golay20{}.Info(fixed)
	if ierr != nil {
		return nil, 0, ierr
	}
	return info, fixed.Corrected() - v.Corrected(), err
}

// BPTCStep decodes a DMR block product code and outputs its 96 data bits.
type BPTCStep struct{}

func (BPTCStep) Name() string {
	return "bptc(196,96)"
}

func (BPTCStep) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	fixed, err := fec.BPTC196{}.Decode(v)
	if fixed == nil {
		return nil, 0, err
	}
	info, ierr := fec.BPTC196{}.Info(fixed)
	if ierr != nil {
		return nil, 0, ierr
	}
	return info, fixed.Corrected() - v.Corrected(), err
}

// CRCStep verifies the checksum held in the trailing Width bits.
type CRCStep struct {
	CRC fec.CRC
}

func (s CRCStep) Name() string {
	return "crc " + s.CRC.Name
}

func (s CRCStep) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	field := fec.Range{Start: v.Len() - s.CRC.Width, End: v.Len()}
	outcome, out, err := s.CRC.Verify(v, field)
	if err != nil {
		return nil, 0, err
	}
	switch outcome {
	case fec.Corrected:
		return out, out.Corrected() - v.Corrected(), nil
	case fec.Failed:
		return out, 0, fec.ErrChecksum
	}
	return out, 0, nil
}

// Segment runs Chain over bits [Start, End) of the input.
type Segment struct {
	Label      string
	Start, End int
	Chain      Chain
}

// Segments decodes independent fields of a frame and concatenates their
// outputs in order. Every segment runs even when an earlier one fails.
type Segments []Segment

func (s Segments) Name() string {
	return "segments"
}

func (s Segments) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	out, n, _, err := s.run(v)
	return out, n, err
}

// run also reports the steps of every segment, named "label/step".
func (s Segments) run(v *bits.Vector) (*bits.Vector, int, []StepResult, error) {
	var (
		parts []*bits.Vector
		steps []StepResult
		total int
		errs  []error
	)
	for _, seg := range s {
		in, err := v.Slice(seg.Start, seg.End)
		if err != nil {
			return nil, total, steps, fmt.Errorf("%s: %w", seg.Label, err)
		}
		r := seg.Chain.Run(in)
		total += r.Corrected
		parts = append(parts, r.Bits)
		for _, st := range r.Steps {
			st.Name = seg.Label + "/" + st.Name
			steps = append(steps, st)
		}
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", seg.Label, r.Err))
		}
	}
	return bits.Concat(parts...), total, steps, errors.Join(errs...)
}

// Case is one branch of a Select.
type Case struct {
	Label string
	Chain Chain
}

// Select picks the chain for a frame from a field of the frame itself, such
// as a burst type. Key errors make the frame invalid. Keys without a case
// use Default, and a nil Default passes the frame through.
type Select struct {
	Label   string
	Key     func(v *bits.Vector) (int, error)
	Cases   map[int]Case
	Default Case
}

func (s Select) Name() string {
	return s.Label
}

func (s Select) Apply(v *bits.Vector) (*bits.Vector, int, error) {
	out, n, _, err := s.run(v)
	return out, n, err
}

// run reports the chosen chain's steps as "label=case/step".
func (s Select) run(v *bits.Vector) (*bits.Vector, int, []StepResult, error) {
	key, err := s.Key(v)
	if err != nil {
		err = fmt.Errorf("%s: %w", s.Label, err)
		return nil, 0, []StepResult{{Name: s.Label, Err: err}}, err
	}
	c, ok := s.Cases[key]
	if !ok {
		c = s.Default
	}
	prefix := s.Label + "=" + c.Label
	if len(c.Chain) == 0 {
		return v.Copy(), 0, []StepResult{{Name: prefix}}, nil
	}
	r := c.Chain.Run(v)
	steps := make([]StepResult, 0, len(r.Steps))
	for _, st := range r.Steps {
		st.Name = prefix + "/" + st.Name
		steps = append(steps, st)
	}
	if r.Err != nil {
		return r.Bits, r.Corrected, steps, fmt.Errorf("%s: %w", prefix, r.Err)
	}
	return r.Bits, r.Corrected, steps, nil
}

// mapChain returns a copy of c with f applied to every step, descending into
// segments and select cases.
func mapChain(c Chain, f func(Step) Step) Chain {
	out := make(Chain, len(c))
	for i, s := range c {
		switch st := s.(type) {
		case Segments:
			cp := make(Segments, len(st))
			for j, seg := range st {
				seg.Chain = mapChain(seg.Chain, f)
				cp[j] = seg
			}
			out[i] = cp
		case Select:
			cases := make(map[int]Case, len(st.Cases))
			for k, cs := range st.Cases {
				cs.Chain = mapChain(cs.Chain, f)
				cases[k] = cs
			}
			st.Cases = cases
			st.Default.Chain = mapChain(st.Default.Chain, f)
			out[i] = st
		default:
			out[i] = f(s)
		}
	}
	return out
}
