package framing

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
)

var (
	nxdnControlSequence = []float32{
		1.0, 2.0, -1.1, -2.1, 1.0, 2.0, -1.1, -2.1, 1.0, 2.0, -1.1,
		-2.1, -2.1, 1.3, -2.2, 2.3, -2.05, -2.15, 2.25, 2.35, -1.4, 2.45,
	}
	nxdnStandardSequence = []float32{-2.1, 1.3, -2.2, 2.3, -2.05, -2.15, 2.25, 2.35, -1.4, 2.45}
)

func TestCorrelatorKnownScores(t *testing.T) {
	tests := []struct {
		name    string
		pattern *SyncPattern
		window  []float32
		want    float32
	}{
		{"control", NXDNControl, nxdnControlSequence, 34.28263},
		{"standard", NXDNStandard, nxdnStandardSequence, 44.178642},
	}
	for _, tt := range tests {
		for _, lanes := range AllLanes {
			c, err := NewCorrelator(tt.pattern, lanes)
			if err != nil {
				t.Fatal(err)
			}
			got, err := c.Score(tt.window)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(float64(got-tt.want)) > 1e-4 {
				t.Errorf("%s %v: Score() = %v, want %v", tt.name, lanes, got, tt.want)
			}
		}
	}
}

func TestCorrelatorLaneEquivalence(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	patterns := []*SyncPattern{P25Phase1, DMRBaseVoice, NXDNStandard, NXDNControl, M17LSF}
	for _, p := range patterns {
		ref := make([]float64, p.Symbols())
		for i, r := range p.Reference() {
			ref[i] = float64(r)
		}
		scalar, _ := NewCorrelator(p, Scalar)
		for trial := 0; trial < 100; trial++ {
			w := make([]float32, p.Symbols())
			w64 := make([]float64, len(w))
			for i := range w {
				w[i] = float32(rnd.NormFloat64() * 2)
				w64[i] = float64(w[i])
			}
			want, _ := scalar.Score(w)
			if d := math.Abs(float64(want) - floats.Dot(ref, w64)); d > 1e-4 {
				t.Fatalf("%s: scalar score %v differs from reference by %v", p.Name, want, d)
			}
			for _, lanes := range AllLanes[1:] {
				c, _ := NewCorrelator(p, lanes)
				got, _ := c.Score(w)
				if math.Abs(float64(got-want)) >= 1e-5 {
					t.Errorf("%s %v: Score() = %v, scalar = %v", p.Name, lanes, got, want)
				}
			}
		}
	}
}

func TestCorrelatorProcess(t *testing.T) {
	for _, lanes := range AllLanes {
		c, _ := NewCorrelator(NXDNStandard, lanes)
		// noise first, so the window has wrapped before the pattern arrives
		for _, s := range []float32{0.3, -2.9, 1.1, 0.7, -0.2, 3.1, -1.0, 2.2, 0.1, -0.4, 1.9, -3.3, 0.6} {
			c.Process(s)
		}
		var got float32
		for _, s := range nxdnStandardSequence {
			got = c.Process(s)
		}
		if math.Abs(float64(got-44.178642)) > 1e-4 {
			t.Errorf("%v: Process() = %v, want 44.178642", lanes, got)
		}

		c.Reset()
		got = c.Process(2.0)
		want := 2.0 * NXDNStandard.Reference()[NXDNStandard.Symbols()-1]
		if math.Abs(float64(got-want)) > 1e-6 {
			t.Errorf("%v: Process() after Reset() = %v, want %v", lanes, got, want)
		}
	}
}

func TestCorrelatorNaN(t *testing.T) {
	c, _ := NewCorrelator(M17LSF, Lanes4)
	if got := c.Process(float32(math.NaN())); !math.IsNaN(float64(got)) {
		t.Errorf("Process(NaN) = %v, want NaN", got)
	}
}

func TestCorrelatorErrors(t *testing.T) {
	c, _ := NewCorrelator(M17LSF, Lanes8)
	if _, err := c.Score(make([]float32, 7)); !errors.Is(err, ErrWindowLength) {
		t.Errorf("Score() error = %v, want ErrWindowLength", err)
	}
	if _, err := NewCorrelator(M17LSF, Lanes(3)); err == nil {
		t.Errorf("NewCorrelator(3 lanes) returned no error")
	}
	if _, err := NewSyncPattern("long", 0, 66, C4FM, 0, 0); !errors.Is(err, ErrPatternTooLong) {
		t.Errorf("NewSyncPattern(66 bits) error = %v, want ErrPatternTooLong", err)
	}
	if _, err := NewSyncPattern("odd", 0, 15, C4FM, 0, 0); !errors.Is(err, ErrPatternTooLong) {
		t.Errorf("NewSyncPattern(15 bits) error = %v, want ErrPatternTooLong", err)
	}
}

func TestParseLanes(t *testing.T) {
	tests := []struct {
		in      string
		want    Lanes
		wantErr bool
	}{
		{"scalar", Scalar, false},
		{"", Scalar, false},
		{"1", Scalar, false},
		{"8", Lanes8, false},
		{" 16 ", Lanes16, false},
		{"3", 0, true},
		{"wide", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLanes(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLanes(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLanes(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAlphabetSlice(t *testing.T) {
	tests := []struct {
		a    Alphabet
		sym  float32
		want byte
	}{
		{C4FM, 2.7, 1},
		{C4FM, 0.4, 0},
		{C4FM, -0.9, 2},
		{C4FM, -5, 3},
		{NXDNPhase, 2.2, 1},
		{NXDNPhase, -0.5, 2},
	}
	for _, tt := range tests {
		if got := tt.a.Slice(tt.sym); got != tt.want {
			t.Errorf("Slice(%v) = %d, want %d", tt.sym, got, tt.want)
		}
	}
}
