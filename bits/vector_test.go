package bits

import (
	"errors"
	"reflect"
	"testing"

	"github.com/icza/gog"
)

func TestGetSet(t *testing.T) {
	v := New(70)
	for _, i := range []int{0, 5, 63, 64, 69} {
		if err := v.Set(i, true); err != nil {
			t.Fatalf("Set(%d) error: %v", i, err)
		}
	}
	for i := 0; i < 70; i++ {
		got, err := v.Get(i)
		if err != nil {
			t.Fatalf("Get(%d) error: %v", i, err)
		}
		want := i == 0 || i == 5 || i == 63 || i == 64 || i == 69
		if got != want {
			t.Errorf("Get(%d) = %v, want %v", i, got, want)
		}
	}
	if v.OnesCount() != 5 {
		t.Errorf("OnesCount() = %d, want 5", v.OnesCount())
	}
	if err := v.Set(64, false); err != nil {
		t.Fatal(err)
	}
	if v.Bit(64) {
		t.Errorf("Bit(64) = true after clear")
	}
}

func TestOutOfRange(t *testing.T) {
	v := New(8)
	tests := []struct {
		name string
		f    func() error
	}{
		{"Get negative", func() error { _, err := v.Get(-1); return err }},
		{"Get past end", func() error { _, err := v.Get(8); return err }},
		{"Set past end", func() error { return v.Set(8, true) }},
		{"Flip past end", func() error { return v.Flip(100) }},
		{"Slice reversed", func() error { _, err := v.Slice(5, 3); return err }},
		{"Slice past end", func() error { _, err := v.Slice(0, 9); return err }},
		{"Uint past end", func() error { _, err := v.Uint(4, 12); return err }},
		{"SetUint past end", func() error { return v.SetUint(6, 4, 3) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.f(); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("error = %v, want ErrOutOfRange", err)
			}
		})
	}
}

func TestBitPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Bit(8) did not panic")
		}
	}()
	New(8).Bit(8)
}

func TestSliceIsIndependent(t *testing.T) {
	v := MustParse("1100_1010_1111")
	v.AddCorrected(3)
	s, err := v.Slice(2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if s.String() != "00101011" {
		t.Errorf("Slice() = %s, want 00101011", s)
	}
	if s.Corrected() != 0 {
		t.Errorf("Slice().Corrected() = %d, want 0", s.Corrected())
	}
	gog.Must(0, s.Flip(0))
	if v.Bit(2) {
		t.Errorf("flipping the slice changed the parent")
	}
	c := v.Copy()
	if c.Corrected() != 3 || !c.Equal(v) {
		t.Errorf("Copy() = %s/%d, want %s/3", c, c.Corrected(), v)
	}
}

func TestUint(t *testing.T) {
	v := FromBytes([]byte{0x55, 0x75, 0xF5, 0xFF, 0x77, 0xFF})
	tests := []struct {
		start, end int
		want       uint64
	}{
		{0, 48, 0x5575F5FF77FF},
		{0, 8, 0x55},
		{4, 12, 0x57},
		{47, 48, 1},
		{10, 10, 0},
	}
	for _, tt := range tests {
		got, err := v.Uint(tt.start, tt.end)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Uint(%d, %d) = %#x, want %#x", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestFieldPut(t *testing.T) {
	v := New(32)
	gog.Must(0, Put[uint16](v, 3, 12, 0xABC))
	got := gog.Must(Field[uint16](v, 3, 12))
	if got != 0xABC {
		t.Errorf("Field() = %#x, want 0xabc", got)
	}
	if v.OnesCount() != 7 {
		t.Errorf("OnesCount() = %d, want 7", v.OnesCount())
	}
	b := gog.Must(Field[uint8](v, 0, 8))
	if b != 0x15 {
		t.Errorf("Field[uint8]() = %#x, want 0x15", b)
	}
}

func TestBytes(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"", []byte{}},
		{"1", []byte{0x80}},
		{"10100101", []byte{0xA5}},
		{"1010010111", []byte{0xA5, 0xC0}},
	}
	for _, tt := range tests {
		got := MustParse(tt.in).Bytes()
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Bytes(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}
	in := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if got := FromBytes(in).Bytes(); !reflect.DeepEqual(got, in) {
		t.Errorf("FromBytes().Bytes() = %x, want %x", got, in)
	}
}

func TestDistance(t *testing.T) {
	a := FromUint(0x5575F5FF77FF, 48)
	b := a.Copy()
	gog.Must(0, b.Flip(0))
	gog.Must(0, b.Flip(47))
	if d := a.Distance(b); d != 2 {
		t.Errorf("Distance() = %d, want 2", d)
	}
	if d := a.Distance(New(50)); d != a.OnesCount()+2 {
		t.Errorf("Distance() with length mismatch = %d, want %d", d, a.OnesCount()+2)
	}
	long := New(200)
	long2 := New(200)
	gog.Must(0, long2.Flip(130))
	gog.Must(0, long2.Flip(199))
	if d := long.Distance(long2); d != 2 {
		t.Errorf("Distance() = %d, want 2", d)
	}
}

func TestConcat(t *testing.T) {
	a := MustParse("101")
	a.AddCorrected(1)
	b := MustParse("0011")
	b.AddCorrected(2)
	c := Concat(a, b)
	if c.String() != "1010011" || c.Corrected() != 3 {
		t.Errorf("Concat() = %s/%d, want 1010011/3", c, c.Corrected())
	}
}

func TestParseError(t *testing.T) {
	if _, err := Parse("10x1"); err == nil {
		t.Errorf("Parse(10x1) returned no error")
	}
}
