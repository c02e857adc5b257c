package pipeline

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/jancona/lmrdecode/config"
	"github.com/klauspost/compress/zstd"
	"go.bug.st/serial"
)

// Open returns the reader for a channel input: stdin for "-", a serial
// port, a unix socket such as the emulator's, or a file, decompressed when
// its name ends in .zst. Serial ports and sockets with an RX frequency are
// driven as CC1200 hats.
func Open(ch config.Channel) (io.ReadCloser, error) {
	switch {
	case ch.Input == "" || ch.Input == "-":
		return io.NopCloser(os.Stdin), nil
	case ch.Serial:
		var lines []Line
		if ch.RXFreq != 0 {
			var err error
			if lines, err = gpioSetup(modemConfig(ch)); err != nil {
				return nil, err
			}
		}
		log.Printf("[DEBUG] Opening serial port %s at %d baud", ch.Input, ch.Baud)
		mode := &serial.Mode{
			BaudRate: ch.Baud,
		}
		port, err := serial.Open(ch.Input, mode)
		if err != nil {
			closeLines(lines)
			return nil, fmt.Errorf("serial open: %w", err)
		}
		return openModem(port, ch, lines)
	}

	fi, err := os.Stat(ch.Input)
	if err != nil {
		return nil, fmt.Errorf("input stat: %w", err)
	}
	if fi.Mode()&os.ModeSocket == os.ModeSocket {
		log.Printf("[DEBUG] Opening socket %s", ch.Input)
		conn, err := net.Dial("unix", ch.Input)
		if err != nil {
			return nil, fmt.Errorf("socket open: %w", err)
		}
		return openModem(conn, ch, nil)
	}
	f, err := os.Open(ch.Input)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(ch.Input, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return &zstdFile{Decoder: dec, f: f}, nil
}

func modemConfig(ch config.Channel) ModemConfig {
	return ModemConfig{
		RXFreq:         ch.RXFreq,
		FreqCorrection: ch.FreqCorrection,
		AFC:            ch.AFC,
		GPIOChip:       ch.GPIOChip,
		ResetPin:       ch.ResetPin,
		PAEnablePin:    ch.PAEnablePin,
		Boot0Pin:       ch.Boot0Pin,
	}
}

// openModem passes rw through unless the channel names an RX frequency.
func openModem(rw io.ReadWriteCloser, ch config.Channel, lines []Line) (io.ReadCloser, error) {
	if ch.RXFreq == 0 {
		return rw, nil
	}
	cfg := modemConfig(ch)
	m := newModem(rw, lines)
	err := m.start(cfg)
	if err != nil && m.nRST != nil {
		log.Printf("[INFO] Modem handshake failed, resetting hat: %v", err)
		if err = m.Reset(); err == nil {
			time.Sleep(modemBootDelay)
			err = m.start(cfg)
		}
	}
	if err != nil {
		rw.Close()
		closeLines(lines)
		return nil, fmt.Errorf("modem: %w", err)
	}
	return m, nil
}

func closeLines(lines []Line) {
	for _, l := range lines {
		if l != nil {
			l.Close()
		}
	}
}

type zstdFile struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

// ReadSamples decodes r as format ("f32" or "s8") and sends the values to
// out, which it closes on return. A trailing partial value is dropped.
func ReadSamples(ctx context.Context, r io.Reader, format string, out chan<- float32) error {
	defer close(out)
	size := 4
	if format == "s8" {
		size = 1
	} else if format != "f32" {
		return fmt.Errorf("unknown sample format %q", format)
	}
	br := bufio.NewReader(r)
	buf := make([]byte, size)
	for {
		if _, err := io.ReadFull(br, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		var v float32
		if size == 1 {
			v = float32(int8(buf[0]))
		} else {
			v = math.Float32frombits(binary.LittleEndian.Uint32(buf))
		}
		select {
		case out <- v:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Conditioner turns raw samples into one soft symbol per symbol period:
// modem samples lose their DC offset, oversampled input goes through a root
// raised cosine matched filter and is decimated, then everything is scaled.
func Conditioner(samples chan float32, ch config.Channel, rollOff float64) (chan float32, error) {
	src := samples
	if ch.Format == "s8" {
		dcf, err := NewDCFilter(src, 8*ch.SamplesPerSymbol+1)
		if err != nil {
			return nil, fmt.Errorf("dc filter: %w", err)
		}
		src = dcf.Source()
	}
	if ch.SamplesPerSymbol > 1 {
		mf, err := NewMatchedFilter(src, RRCTaps(rollOff, 8, ch.SamplesPerSymbol))
		if err != nil {
			return nil, fmt.Errorf("matched filter: %w", err)
		}
		ds, err := NewDownsampler(mf.Source(), ch.SamplesPerSymbol, ch.Offset)
		if err != nil {
			return nil, fmt.Errorf("downsampler: %w", err)
		}
		src = ds.Source()
	}
	if ch.Scale != 1 {
		sc := NewScaler(src, float32(ch.Scale))
		src = sc.Source()
	}
	return src, nil
}
