// Package protocol describes how each supported air interface is framed and
// which error correction steps recover its payload.
package protocol

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/jancona/lmrdecode/fec"
	"github.com/jancona/lmrdecode/framing"
)

// Profile ties the sync patterns of a protocol to the chains that decode the
// frames they introduce. Profiles returned by the constructors are fresh
// copies and may be modified.
type Profile struct {
	Name     string
	Alphabet framing.Alphabet
	// RollOff is the root raised cosine roll-off of the transmit filter.
	RollOff     float64
	Syncs       []framing.SyncConfig
	IncludeSync bool
	Policy      framing.SyncPolicy
	// SoftSync starts captures from correlator threshold crossings instead
	// of Hamming matches on sliced bits.
	SoftSync bool
	// Chains is keyed by sync pattern name. Patterns without a chain pass
	// their frames through.
	Chains map[string]Chain
}

const (
	p25StatusPeriod = 36
	// first status dibit after the 24-dibit frame sync
	p25StatusOffset = 11
	p25NIDBits      = 64
	p25TSBKBits     = 196
	p25FrameBits    = p25NIDBits + p25TSBKBits + 2*4

	dmrPayloadBits = 108
	nxdnFrameBits  = 364
	m17PayloadBits = 368
	m17LICHBits    = 96
)

// P25 decodes Phase 1 control channel frames: the network identifier and
// the first trellis coded TSBK block that follows it.
func P25() *Profile {
	return &Profile{
		Name:     "p25",
		RollOff:  0.2,
		Alphabet: framing.C4FM,
		Syncs: []framing.SyncConfig{
			{Pattern: framing.P25Phase1, FrameBits: p25FrameBits},
		},
		Policy: framing.PolicyPreempt,
		Chains: map[string]Chain{
			framing.P25Phase1.Name: {
				StripStatus{Period: p25StatusPeriod, Offset: p25StatusOffset},
				Segments{
					{Label: "nid", Start: 0, End: p25NIDBits, Chain: Chain{
						BCHStep{Code: fec.P25NID},
					}},
					{Label: "tsbk", Start: p25NIDBits, End: p25NIDBits + p25TSBKBits, Chain: Chain{
						Permute{Label: "p25 deinterleave", Perm: fec.P25DataDeinterleaver},
						Trellis{Code: fec.P25HalfRate},
						CRCStep{CRC: fec.CRCP25},
					}},
				},
			},
		},
	}
}

// DMR captures whole bursts: the payload half before the sync, the sync and
// the payload half after it. Data bursts are decoded by slot type; voice
// bursts are passed through.
func DMR() *Profile {
	var syncs []framing.SyncConfig
	for _, p := range []*framing.SyncPattern{framing.DMRBaseData, framing.DMRBaseVoice, framing.DMRMobData, framing.DMRMobVoice} {
		syncs = append(syncs, framing.SyncConfig{Pattern: p, FrameBits: dmrPayloadBits, Lookback: dmrPayloadBits})
	}
	return &Profile{
		Name:        "dmr",
		RollOff:     0.2,
		Alphabet:    framing.C4FM,
		Syncs:       syncs,
		IncludeSync: true,
		Policy:      framing.PolicyIgnore,
		Chains: map[string]Chain{
			framing.DMRBaseData.Name: dmrDataChain(),
			framing.DMRMobData.Name:  dmrDataChain(),
		},
	}
}

func NXDN() *Profile {
	return &Profile{
		Name:     "nxdn",
		RollOff:  0.2,
		Alphabet: framing.NXDNPhase,
		Syncs: []framing.SyncConfig{
			{Pattern: framing.NXDNStandard, FrameBits: nxdnFrameBits},
		},
		Policy: framing.PolicyIgnore,
		Chains: map[string]Chain{
			framing.NXDNStandard.Name: nxdnChain(),
		},
	}
}

// NXDNControl syncs on the preamble plus frame sync word sent ahead of
// control channel bursts, using the soft correlator.
func NXDNControl() *Profile {
	return &Profile{
		Name:     "nxdn-control",
		RollOff:  0.2,
		Alphabet: framing.NXDNPhase,
		Syncs: []framing.SyncConfig{
			{Pattern: framing.NXDNControl, FrameBits: nxdnFrameBits},
		},
		Policy:   framing.PolicyIgnore,
		SoftSync: true,
		Chains: map[string]Chain{
			framing.NXDNControl.Name: nxdnChain(),
		},
	}
}

func M17() *Profile {
	prologue := func(rest ...Step) Chain {
		return append(Chain{
			Derandomize{},
			Permute{Label: "m17 deinterleave", Perm: fec.M17Interleaver},
		}, rest...)
	}
	return &Profile{
		Name:     "m17",
		RollOff:  0.5,
		Alphabet: framing.C4FM,
		Syncs: []framing.SyncConfig{
			{Pattern: framing.M17LSF, FrameBits: m17PayloadBits},
			{Pattern: framing.M17Stream, FrameBits: m17PayloadBits},
			{Pattern: framing.M17Packet, FrameBits: m17PayloadBits},
			{Pattern: framing.M17BERT, FrameBits: m17PayloadBits},
		},
		Policy: framing.PolicyIgnore,
		Chains: map[string]Chain{
			framing.M17LSF.Name: prologue(
				Viterbi{Code: fec.M17LSF},
				CRCStep{CRC: fec.CRCM17},
			),
			framing.M17Stream.Name: prologue(
				Segments{
					{Label: "lich", Start: 0, End: m17LICHBits, Chain: Chain{GolayStep{}}},
					{Label: "payload", Start: m17LICHBits, End: m17PayloadBits, Chain: Chain{Viterbi{Code: fec.M17Stream}}},
				},
			),
			framing.M17Packet.Name: prologue(
				Viterbi{Code: fec.M17Packet},
			),
		},
	}
}

var profiles = map[string]func() *Profile{
	"p25":          P25,
	"dmr":          DMR,
	"nxdn":         NXDN,
	"nxdn-control": NXDNControl,
	"m17":          M17,
}

// Names lists the built-in profiles in sorted order.
func Names() []string {
	var names []string
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a fresh copy of the named built-in profile.
func Lookup(name string) (*Profile, error) {
	f, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return f(), nil
}

// FramerConfig returns the framer settings for this profile. Soft sync
// profiles disable Hamming detection.
func (p *Profile) FramerConfig() framing.FramerConfig {
	return framing.FramerConfig{
		Syncs:        append([]framing.SyncConfig(nil), p.Syncs...),
		IncludeSync:  p.IncludeSync,
		Policy:       p.Policy,
		ExternalSync: p.SoftSync,
	}
}

func (p *Profile) Chain(pattern *framing.SyncPattern) Chain {
	return p.Chains[pattern.Name]
}

// Decode runs the chain for the frame's sync pattern.
func (p *Profile) Decode(f framing.Frame) Result {
	r := p.Chain(f.Pattern).Run(f.Bits)
	if r.Err != nil {
		log.Printf("[DEBUG] %s %s frame invalid: %v", p.Name, f.Pattern.Name, r.Err)
	}
	return r
}

// SetMaxSyncErrors changes the Hamming tolerance of every sync pattern.
func (p *Profile) SetMaxSyncErrors(n int) {
	for i := range p.Syncs {
		p.Syncs[i].Pattern = p.Syncs[i].Pattern.WithMaxBitErrors(n)
	}
}

// SetSyncThreshold changes the soft detection threshold of every pattern.
func (p *Profile) SetSyncThreshold(t float32) {
	for i := range p.Syncs {
		p.Syncs[i].Pattern = p.Syncs[i].Pattern.WithThreshold(t)
	}
}

// SetCRCTrialBits changes how many flipped bits every CRC step may repair.
func (p *Profile) SetCRCTrialBits(n int) {
	for name, c := range p.Chains {
		p.Chains[name] = mapChain(c, func(s Step) Step {
			if cs, ok := s.(CRCStep); ok {
				cs.CRC.TrialBits = n
				return cs
			}
			return s
		})
	}
}
