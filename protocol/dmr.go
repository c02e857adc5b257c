package protocol

import (
	"fmt"

	"github.com/jancona/lmrdecode/bits"
	"github.com/jancona/lmrdecode/fec"
)

// Layout of a captured DMR burst: two payload halves around the slot type
// and sync.
const (
	dmrBurstBits  = 2*dmrPayloadBits + 48
	dmrRate34Data = 8
)

var (
	dmrSlotTypeRanges = []fec.Range{{Start: 98, End: 108}, {Start: 156, End: 166}}
	dmrInfoRanges     = []fec.Range{{Start: 0, End: 98}, {Start: 166, End: dmrBurstBits}}
)

// BPTC coded data types, by slot type value.
var dmrBPTCTypes = map[int]string{
	0: "pi header",
	1: "voice lc header",
	2: "terminator",
	3: "csbk",
	4: "mbc header",
	5: "mbc",
	6: "data header",
	7: "rate 1/2 data",
	9: "idle",
}

// dmrDataType decodes the slot type of a data burst and returns its data
// type, the low four bits after the color code.
func dmrDataType(v *bits.Vector) (int, error) {
	st, _, err := Gather{Ranges: dmrSlotTypeRanges}.Apply(v)
	if err != nil {
		return 0, err
	}
	fixed, err := fec.Golay20{}.Decode(st)
	if err != nil {
		return 0, fmt.Errorf("slot type: %w", err)
	}
	dt, err := fixed.Uint(4, 8)
	return int(dt), err
}

// dmrDataChain decodes the slot type of a data burst and then its payload
// according to the data type: block product coded, rate 3/4 trellis coded,
// or passed through.
func dmrDataChain() Chain {
	slotType := Segment{Label: "slot type", Start: 0, End: dmrBurstBits, Chain: Chain{
		Gather{Label: "gather slot type", Ranges: dmrSlotTypeRanges},
		Golay20Step{},
	}}
	info := func(rest ...Step) Segment {
		return Segment{Label: "info", Start: 0, End: dmrBurstBits, Chain: append(Chain{
			Gather{Label: "gather info", Ranges: dmrInfoRanges},
		}, rest...)}
	}
	cases := map[int]Case{
		dmrRate34Data: {Label: "rate 3/4 data", Chain: Chain{Segments{
			slotType,
			info(
				Permute{Label: "dmr deinterleave", Perm: fec.P25DataDeinterleaver},
				Trellis{Code: fec.P25ThreeQuarterRate},
			),
		}}},
	}
	for dt, name := range dmrBPTCTypes {
		cases[dt] = Case{Label: name, Chain: Chain{Segments{slotType, info(BPTCStep{})}}}
	}
	return Chain{Select{
		Label:   "data type",
		Key:     dmrDataType,
		Cases:   cases,
		Default: Case{Label: "raw", Chain: Chain{Segments{slotType, info()}}},
	}}
}
