package pipeline

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// Transform reads values from sink, maps each to zero or more outputs and
// writes them to Source. Source is closed once sink is closed and drained.
type Transform[I any, O any] struct {
	sink      chan I
	source    chan O
	transform func(I) []O
}

func NewTransform[I any, O any](sink chan I, transform func(I) []O, sourceSize int) Transform[I, O] {
	ret := Transform[I, O]{
		sink:      sink,
		source:    make(chan O, sourceSize),
		transform: transform,
	}
	go ret.handle()
	return ret
}

func (t *Transform[I, O]) Source() chan O {
	return t.source
}

func (t *Transform[I, O]) handle() {
	for {
		sample, ok := <-t.sink
		if !ok {
			break
		}
		for _, s := range t.transform(sample) {
			t.source <- s
		}
	}
	close(t.source)
}

// DCFilter removes the DC offset of a sample stream by subtracting a moving
// average of the last averageN samples.
type DCFilter[T Number] struct {
	Transform[T, T]
	averageN  int
	movingAvg T
}

func NewDCFilter[T Number](sink chan T, averageN int) (*DCFilter[T], error) {
	if averageN < 1 {
		return nil, fmt.Errorf("averageN must be greater than zero")
	}
	ret := &DCFilter[T]{
		averageN: averageN,
	}
	ret.Transform = NewTransform(sink, ret.dcFilter, 0)
	return ret, nil
}

func (t *DCFilter[T]) dcFilter(sample T) []T {
	// float64 keeps narrow integer types from overflowing
	t.movingAvg = T((float64(t.movingAvg)*float64(t.averageN-1) + float64(sample)) / float64(t.averageN))
	return []T{sample - t.movingAvg}
}

// Scaler multiplies every value by a factor.
type Scaler[T Number] struct {
	Transform[T, T]
	factor T
}

func NewScaler[T Number](sink chan T, factor T) *Scaler[T] {
	ret := &Scaler[T]{
		factor: factor,
	}
	ret.Transform = NewTransform(sink, ret.scale, 0)
	return ret
}

func (t *Scaler[T]) scale(sample T) []T {
	return []T{sample * t.factor}
}

// Downsampler keeps one value of every factor, starting at offset.
type Downsampler[T any] struct {
	Transform[T, T]
	factor int
	offset int
	count  int
}

func NewDownsampler[T any](sink chan T, factor int, offset int) (*Downsampler[T], error) {
	if factor < 1 {
		return nil, fmt.Errorf("factor must be at least 1")
	}
	if offset < 0 || offset >= factor {
		return nil, fmt.Errorf("offset must be between 0 and %d", factor-1)
	}
	ret := &Downsampler[T]{
		factor: factor,
		offset: offset,
	}
	ret.Transform = NewTransform(sink, ret.downsample, 0)
	return ret, nil
}

func (t *Downsampler[T]) downsample(sample T) []T {
	var ret []T
	if t.count == t.offset {
		ret = []T{sample}
	}
	t.count++
	if t.count == t.factor {
		t.count = 0
	}
	return ret
}

// MatchedFilter convolves samples with a fixed set of taps, normally a root
// raised cosine pulse.
type MatchedFilter struct {
	Transform[float32, float32]
	taps []float32
	buf  []float32 // each sample stored at pos and pos+len(taps)
	pos  int
}

func NewMatchedFilter(sink chan float32, taps []float32) (*MatchedFilter, error) {
	if len(taps) == 0 {
		return nil, fmt.Errorf("matched filter needs at least one tap")
	}
	ret := &MatchedFilter{
		taps: taps,
		buf:  make([]float32, 2*len(taps)),
	}
	ret.Transform = NewTransform(sink, ret.filter, 0)
	return ret, nil
}

func (t *MatchedFilter) filter(sample float32) []float32 {
	n := len(t.taps)
	t.buf[t.pos] = sample
	t.buf[t.pos+n] = sample
	t.pos++
	if t.pos == n {
		t.pos = 0
	}
	// the newest sample meets taps[0]
	window := t.buf[t.pos : t.pos+n]
	var acc float32
	for i, x := range window {
		acc += t.taps[n-1-i] * x
	}
	return []float32{acc}
}

// RRCTaps returns root raised cosine taps with roll-off alpha, spanning span
// symbols at sps samples per symbol, scaled so the energy is sps.
func RRCTaps(alpha float64, span, sps int) []float32 {
	n := span*sps + 1
	taps := make([]float64, n)
	var energy float64
	for i := range taps {
		t := float64(i-n/2) / float64(sps)
		var h float64
		switch {
		case t == 0:
			h = 1 - alpha + 4*alpha/math.Pi
		case alpha > 0 && math.Abs(math.Abs(4*alpha*t)-1) < 1e-9:
			h = alpha / math.Sqrt2 * ((1+2/math.Pi)*math.Sin(math.Pi/(4*alpha)) + (1-2/math.Pi)*math.Cos(math.Pi/(4*alpha)))
		default:
			h = (math.Sin(math.Pi*t*(1-alpha)) + 4*alpha*t*math.Cos(math.Pi*t*(1+alpha))) /
				(math.Pi * t * (1 - (4*alpha*t)*(4*alpha*t)))
		}
		taps[i] = h
		energy += h * h
	}
	gain := math.Sqrt(float64(sps) / energy)
	out := make([]float32, n)
	for i, h := range taps {
		out[i] = float32(h * gain)
	}
	return out
}
