package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/logutils"
	"github.com/jancona/lmrdecode/bits"
	"github.com/jancona/lmrdecode/emulator"
	"github.com/jancona/lmrdecode/protocol"
)

var (
	isDebugArg  *bool          = flag.Bool("debug", false, "Emit debug log messages")
	logDestArg  *string        = flag.String("log", "", "Device/file for log (default stderr)")
	profileArg  *string        = flag.String("profile", "m17", "Frames to emit: m17 or p25")
	socketArg   *string        = flag.String("socket", "", "Serve samples on this unix socket instead of stdout")
	formatArg   *string        = flag.String("format", "f32", "Sample format: f32 or s8")
	spsArg      *int           = flag.Int("sps", 1, "Samples per symbol")
	gainArg     *float64       = flag.Float64("gain", 1, "Sample gain")
	noiseArg    *float64       = flag.Float64("noise", 0, "Noise standard deviation, relative to a unit symbol")
	seedArg     *uint64        = flag.Uint64("seed", 1, "Random seed for frame contents and noise")
	intervalArg *time.Duration = flag.Duration("interval", time.Second, "Time between frames")
	countArg    *int           = flag.Int("count", 0, "Frames to emit before exiting (0 runs forever)")
	nacArg      *uint          = flag.Uint("nac", 0x293, "P25 network access code")
	hatArg      *bool          = flag.Bool("hat", false, "Answer CC1200 hat commands on the socket before streaming")
	helpArg     *bool          = flag.Bool("h", false, "Print arguments")
)

func main() {
	flag.Parse()
	if *helpArg {
		flag.Usage()
		return
	}
	setupLogging()

	p, err := protocol.Lookup(*profileArg)
	if err != nil {
		log.Fatal(err)
	}
	var next func() (*bits.Vector, error)
	rnd := rand.New(rand.NewPCG(*seedArg, *seedArg+1))
	switch p.Name {
	case "m17":
		next = func() (*bits.Vector, error) {
			lsf := bits.New(224)
			for i := 0; i < lsf.Len(); i++ {
				_ = lsf.Set(i, rnd.IntN(2) == 1)
			}
			return emulator.M17LSF(lsf)
		}
	case "p25":
		next = func() (*bits.Vector, error) {
			block := make([]byte, 10)
			for i := range block {
				block[i] = byte(rnd.UintN(256))
			}
			// last block, standard opcode space
			block[0] = 0x80 | block[0]&0x3f
			return emulator.P25TSBK(uint16(*nacArg), 7, block)
		}
	default:
		log.Fatalf("No emulated frames for profile %s", p.Name)
	}

	e, err := emulator.New(emulator.Config{
		Alphabet:         p.Alphabet,
		RollOff:          p.RollOff,
		SamplesPerSymbol: *spsArg,
		Gain:             float32(*gainArg),
		Noise:            *noiseArg,
		Seed:             *seedArg,
	}, 10)
	if err != nil {
		log.Fatal(err)
	}

	out, cleanup, err := openOutput(*socketArg)
	if err != nil {
		log.Fatal(err)
	}
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cleanup()
		os.Exit(1)
	}()
	defer cleanup()

	blockTicker := time.NewTicker(emulator.BlockMillis * time.Millisecond)
	defer blockTicker.Stop()
	frameTicker := time.NewTicker(*intervalArg)
	defer frameTicker.Stop()
	var sent int
	for {
		select {
		case <-frameTicker.C:
			if *countArg > 0 && sent >= *countArg {
				log.Printf("[INFO] Sent %d frames", sent)
				return
			}
			frame, err := next()
			if err != nil {
				log.Fatalf("Error building frame: %v", err)
			}
			if e.Queue(frame) {
				sent++
				log.Printf("[DEBUG] Queued %s frame %d", p.Name, sent)
			}
		case <-blockTicker.C:
			b, err := emulator.Encode(*formatArg, e.Next())
			if err != nil {
				log.Fatal(err)
			}
			if _, err := out.Write(b); err != nil {
				log.Printf("[ERROR] Write failed, exiting: %v", err)
				return
			}
		}
	}
}

// openOutput returns stdout, or waits for a decoder to connect to the unix
// socket at path.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[INFO] Waiting for a connection on %s", path)
	conn, err := l.Accept()
	if err != nil {
		l.Close()
		return nil, nil, err
	}
	log.Printf("[INFO] Decoder connected")
	if *hatArg {
		if _, err := emulator.AnswerCommands(conn); err != nil {
			conn.Close()
			l.Close()
			return nil, nil, fmt.Errorf("hat commands: %w", err)
		}
	}
	return conn, func() {
		conn.Close()
		l.Close()
	}, nil
}

func setupLogging() {
	var err error
	minLogLevel := "INFO"
	if *isDebugArg {
		minLogLevel = "DEBUG"
	}
	logWriter := os.Stderr
	if *logDestArg != "" {
		logWriter, err = os.OpenFile(*logDestArg, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Error opening log output, exiting: %v", err)
		}
	}

	filter := &logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "ERROR"},
		MinLevel: logutils.LogLevel(minLogLevel),
		Writer:   logWriter,
	}
	log.SetOutput(filter)
	log.Print("[DEBUG] Debug is on")
}
