// Package emulator synthesizes the sample stream a receiver would hand the
// decoder: encoded frames behind their sync words, optionally pulse shaped,
// with noise filling the gaps between bursts.
package emulator

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"

	"github.com/jancona/lmrdecode/bits"
	"github.com/jancona/lmrdecode/fec"
	"github.com/jancona/lmrdecode/framing"
	"github.com/jancona/lmrdecode/pipeline"
)

const (
	SymbolsPerSecond = 4800
	// BlockMillis is the length of the sample block returned by Next.
	BlockMillis = 40
)

// M17LSF returns the sync word and coded bits of a link setup frame. lsf
// holds the 224 bits ahead of the CRC.
func M17LSF(lsf *bits.Vector) (*bits.Vector, error) {
	if lsf.Len() != 224 {
		return nil, fmt.Errorf("m17 lsf: %d bits, want 224: %w", lsf.Len(), fec.ErrLength)
	}
	crc, err := fec.CRCM17.Checksum(lsf, 0, lsf.Len())
	if err != nil {
		return nil, err
	}
	coded := fec.M17LSF.Encode(bits.Concat(lsf, bits.FromUint(crc, 16)))
	tx, err := fec.M17Interleaver.Apply(coded)
	if err != nil {
		return nil, err
	}
	if tx, err = fec.M17Randomize(tx); err != nil {
		return nil, err
	}
	return bits.Concat(bits.FromUint(framing.M17LSF.Bits, framing.M17LSF.Length), tx), nil
}

// P25TSBK returns the sync word, network identifier and one trellis coded
// trunking block with status symbols interleaved. block holds the 10 bytes
// ahead of the CRC.
func P25TSBK(nac uint16, duid uint8, block []byte) (*bits.Vector, error) {
	if len(block) != 10 {
		return nil, fmt.Errorf("p25 tsbk: %d bytes, want 10: %w", len(block), fec.ErrLength)
	}
	cw, err := fec.P25NID.Encode(bits.FromUint(uint64(nac)<<4|uint64(duid&0xf), 16))
	if err != nil {
		return nil, err
	}
	nid := bits.Concat(cw, bits.FromBools([]bool{cw.OnesCount()%2 == 1}))

	data := bits.FromBytes(block)
	crc, err := fec.CRCP25.Checksum(data, 0, data.Len())
	if err != nil {
		return nil, err
	}
	coded, err := fec.P25HalfRate.Encode(bits.Concat(data, bits.FromUint(crc, 16)))
	if err != nil {
		return nil, err
	}
	tx, err := fec.P25DataInterleaver.Apply(coded)
	if err != nil {
		return nil, err
	}
	frame, err := fec.InsertStatus(bits.Concat(nid, tx), 36, 11, 2)
	if err != nil {
		return nil, err
	}
	return bits.Concat(bits.FromUint(framing.P25Phase1.Bits, framing.P25Phase1.Length), frame), nil
}

// Symbols maps bit pairs to ideal soft symbols, first bit most significant.
func Symbols(a framing.Alphabet, v *bits.Vector) []float32 {
	out := make([]float32, v.Len()/2)
	for i := range out {
		d := 0
		if v.Bit(2 * i) {
			d |= 2
		}
		if v.Bit(2*i + 1) {
			d |= 1
		}
		out[i] = a[d]
	}
	return out
}

// Shape upsamples symbols by sps and applies the transmit filter. The
// output includes the filter tail.
func Shape(syms []float32, taps []float32, sps int) []float32 {
	up := make([]float32, len(syms)*sps)
	for i, s := range syms {
		up[i*sps] = s
	}
	out := make([]float32, len(up)+len(taps)-1)
	for n := range out {
		var acc float32
		for k, h := range taps {
			if n-k >= 0 && n-k < len(up) {
				acc += h * up[n-k]
			}
		}
		out[n] = acc
	}
	return out
}

// Config describes the emulated receiver output.
type Config struct {
	Alphabet framing.Alphabet
	// RollOff of the root raised cosine transmit filter, used when
	// SamplesPerSymbol is above one.
	RollOff          float64
	SamplesPerSymbol int
	// Gain multiplies every sample; s8 output needs enough to use the
	// integer range.
	Gain float32
	// Noise is the standard deviation of the gaussian noise added to every
	// sample, relative to the unit symbol.
	Noise float64
	Seed  uint64
}

// Emulator queues modulated bursts and hands out fixed size sample blocks,
// filling with noise when no burst is pending.
type Emulator struct {
	cfg     Config
	taps    []float32
	pending chan float32
	rnd     *rand.Rand
}

// New buffers up to bufSeconds of pending samples.
func New(cfg Config, bufSeconds int) (*Emulator, error) {
	if cfg.SamplesPerSymbol < 1 {
		return nil, fmt.Errorf("samples per symbol must be at least 1, got %d", cfg.SamplesPerSymbol)
	}
	if cfg.Gain == 0 {
		cfg.Gain = 1
	}
	e := &Emulator{
		cfg:     cfg,
		pending: make(chan float32, bufSeconds*SymbolsPerSecond*cfg.SamplesPerSymbol),
		rnd:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
	if cfg.SamplesPerSymbol > 1 {
		// unit peak after the receiver's matched filter
		e.taps = pipeline.RRCTaps(cfg.RollOff, 8, cfg.SamplesPerSymbol)
		for i := range e.taps {
			e.taps[i] /= float32(cfg.SamplesPerSymbol)
		}
	}
	return e, nil
}

// BlockSize is the number of samples Next returns.
func (e *Emulator) BlockSize() int {
	return SymbolsPerSecond * e.cfg.SamplesPerSymbol * BlockMillis / 1000
}

// Modulate turns frame bits into samples without noise or gain.
func (e *Emulator) Modulate(v *bits.Vector) []float32 {
	syms := Symbols(e.cfg.Alphabet, v)
	if e.taps == nil {
		return syms
	}
	return Shape(syms, e.taps, e.cfg.SamplesPerSymbol)
}

// Queue modulates a burst and appends it to the pending samples. It returns
// false when the buffer cannot hold the whole burst.
func (e *Emulator) Queue(v *bits.Vector) bool {
	samples := e.Modulate(v)
	if cap(e.pending)-len(e.pending) < len(samples) {
		log.Printf("[ERROR] Emulator buffer full, dropping %d bit burst", v.Len())
		return false
	}
	for _, s := range samples {
		e.pending <- s
	}
	return true
}

// Next returns one block of samples.
func (e *Emulator) Next() []float32 {
	out := make([]float32, e.BlockSize())
	var burst int
	for i := range out {
		select {
		case out[i] = <-e.pending:
			burst++
		default:
		}
		if e.cfg.Noise > 0 {
			out[i] += float32(e.rnd.NormFloat64() * e.cfg.Noise)
		}
		out[i] *= e.cfg.Gain
	}
	if burst > 0 {
		log.Printf("[DEBUG] Returning %d burst samples, %d idle", burst, len(out)-burst)
	}
	return out
}

// Encode packs samples in the decoder's input format.
func Encode(format string, samples []float32) ([]byte, error) {
	switch format {
	case "f32":
		out := make([]byte, 0, 4*len(samples))
		for _, s := range samples {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(s))
		}
		return out, nil
	case "s8":
		out := make([]byte, len(samples))
		for i, s := range samples {
			out[i] = byte(int8(max(-128, min(127, math.Round(float64(s))))))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown sample format %q", format)
}

// CC1200 hat commands
const (
	cmdPing = iota
	cmdSetRXFreq
	cmdSetTXFreq
	cmdSetTXPower
	cmdSetReserved
	cmdSetFreqCorr
	cmdSetAFC
	cmdSetTXStart
	cmdSetRX
)

const (
	errOK    = iota
	errRange = 3
)

// AnswerCommands plays the CC1200 hat's side of the control exchange on rw
// and returns once the receiver has been started. It returns the receive
// frequency that was set.
func AnswerCommands(rw io.ReadWriter) (uint32, error) {
	var rxFreq uint32
	for {
		head := make([]byte, 2)
		if _, err := io.ReadFull(rw, head); err != nil {
			return 0, err
		}
		if head[1] < 2 {
			return 0, fmt.Errorf("bad command length %d", head[1])
		}
		cmd := make([]byte, head[1]-2)
		if _, err := io.ReadFull(rw, cmd); err != nil {
			return 0, err
		}
		log.Printf("[DEBUG] Command %d: % x", head[0], cmd)
		var resp []byte
		switch head[0] {
		case cmdPing:
			resp = binary.LittleEndian.AppendUint32([]byte{cmdPing, 6}, errOK)
		case cmdSetRXFreq, cmdSetTXFreq:
			status := byte(errRange)
			if len(cmd) == 4 {
				if freq := binary.LittleEndian.Uint32(cmd); freq > 420e6 && freq < 450e6 {
					status = errOK
					if head[0] == cmdSetRXFreq {
						rxFreq = freq
					}
				}
			}
			resp = []byte{head[0], 3, status}
		case cmdSetRX:
			if len(cmd) == 1 && cmd[0] == 1 {
				log.Printf("[INFO] Receiving on %d Hz", rxFreq)
				return rxFreq, nil
			}
			continue
		default:
			resp = []byte{head[0], 3, errOK}
		}
		if _, err := rw.Write(resp); err != nil {
			return 0, err
		}
	}
}
