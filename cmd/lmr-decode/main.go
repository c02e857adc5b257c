package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/logutils"
	"github.com/jancona/lmrdecode/config"
	"github.com/jancona/lmrdecode/pipeline"
	"github.com/jancona/lmrdecode/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var (
	isDebugArg *bool   = flag.Bool("debug", false, "Emit debug log messages")
	logDestArg *string = flag.String("log", "", "Device/file for log (default stderr)")
	configArg  *string = flag.String("config", "", "INI file describing one or more channels")
	outputArg  *string = flag.String("output", "text", "Frame output format: text or yaml")
	metricsArg *string = flag.String("metrics", "", "Address to serve Prometheus metrics on, e.g. :9117")
	listArg    *bool   = flag.Bool("list", false, "List protocol profiles and exit")
	helpArg    *bool   = flag.Bool("h", false, "Print arguments")
)

// channelFlags describe a single channel without a configuration file. Each
// maps to a configuration key; values are validated by config.Load.
var channelFlags = []struct {
	name, key, value, usage string
	boolean                 bool
}{
	{"name", "name", "", "Channel name used in output", false},
	{"profile", "profile", config.DefaultProfile, "Protocol profile (see -list)", false},
	{"in", "input", "", "Symbol input file, serial device or modem socket (default stdin)", false},
	{"serial", "serial", "false", "Input is a serial device", true},
	{"baud", "serial_baud", "460800", "Serial baud rate", false},
	{"format", "format", "f32", "Sample format: f32 or s8", false},
	{"sps", "samples_per_symbol", "1", "Samples per symbol", false},
	{"offset", "offset", "0", "Sample within each symbol period to keep", false},
	{"scale", "scale", "1", "Gain applied to each symbol", false},
	{"lanes", "lanes", "8", "Correlator lane width: scalar, 2, 4, 8 or 16", false},
	{"policy", "policy", "", "Sync during capture: ignore or preempt (default per profile)", false},
	{"crc-trials", "crc_trial_bits", "1", "Bits the CRC check may flip to repair a frame", false},
}

func init() {
	for _, f := range channelFlags {
		if f.boolean {
			flag.Bool(f.name, f.value == "true", f.usage)
		} else {
			flag.String(f.name, f.value, f.usage)
		}
	}
}

func main() {
	flag.Parse()

	if *helpArg {
		flag.Usage()
		return
	}
	if *listArg {
		fmt.Println(strings.Join(protocol.Names(), "\n"))
		return
	}
	setupLogging()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	out, err := newPrinter(os.Stdout, *outputArg)
	if err != nil {
		log.Fatal(err)
	}

	var metrics *pipeline.Metrics
	if *metricsArg != "" {
		metrics = pipeline.NewMetrics(prometheus.DefaultRegisterer)
		go serveMetrics(*metricsArg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		inputs  []pipeline.Input
		readers []io.Closer
	)
	for _, c := range cfg.Channels {
		p, err := c.BuildProfile()
		if err != nil {
			log.Fatalf("Error in channel %s: %v", c.Name, err)
		}
		ch, err := pipeline.NewChannel(c.Name, p, c.Lanes, metrics, out.print)
		if err != nil {
			log.Fatalf("Error creating channel: %v", err)
		}
		r, err := pipeline.Open(c)
		if err != nil {
			log.Fatalf("Error opening input for channel %s: %v", c.Name, err)
		}
		readers = append(readers, r)
		inputs = append(inputs, pipeline.Input{Channel: ch, Reader: r, Config: c})
		log.Printf("[INFO] Channel %s: %s from %s", c.Name, p.Name, inputName(c))
	}
	go func() {
		// unblock readers waiting on a device
		<-ctx.Done()
		for _, r := range readers {
			r.Close()
		}
	}()

	err = pipeline.Run(ctx, inputs...)
	if err != nil && ctx.Err() == nil {
		log.Fatalf("Error decoding: %v", err)
	}
	log.Print("[INFO] Done")
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

// loadConfig reads -config, or turns the channel flags that were set into a
// single channel configuration so both go through the same validation.
func loadConfig() (*config.Config, error) {
	if *configArg != "" {
		return config.Load(*configArg)
	}
	f := ini.Empty()
	sec := f.Section("")
	var err error
	keys := map[string]string{}
	for _, cf := range channelFlags {
		keys[cf.name] = cf.key
	}
	flag.Visit(func(fl *flag.Flag) {
		key, ok := keys[fl.Name]
		if !ok || err != nil {
			return
		}
		_, err = sec.NewKey(key, fl.Value.String())
	})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return config.Load(buf.Bytes())
}

func inputName(c config.Channel) string {
	if c.Input == "" || c.Input == "-" {
		return "stdin"
	}
	return c.Input
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("[INFO] Serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("[ERROR] Metrics server: %v", err)
	}
}

type stepRecord struct {
	Name      string `yaml:"name"`
	Corrected int    `yaml:"corrected,omitempty"`
	Error     string `yaml:"error,omitempty"`
}

type frameRecord struct {
	Channel    string       `yaml:"channel"`
	Pattern    string       `yaml:"pattern"`
	Time       time.Time    `yaml:"time"`
	SyncErrors int          `yaml:"sync_errors"`
	Score      float32      `yaml:"score,omitempty"`
	Validity   string       `yaml:"validity"`
	Corrected  int          `yaml:"corrected"`
	Bits       int          `yaml:"bits"`
	Payload    string       `yaml:"payload"`
	Steps      []stepRecord `yaml:"steps,omitempty"`
}

func newRecord(m pipeline.Message) frameRecord {
	r := frameRecord{
		Channel:    m.Channel,
		Pattern:    m.Frame.Pattern.Name,
		Time:       m.Frame.Timestamp,
		SyncErrors: m.Frame.SyncErrors,
		Score:      m.Frame.Score,
		Validity:   m.Result.Validity.String(),
		Corrected:  m.Result.Corrected,
		Bits:       m.Result.Bits.Len(),
		Payload:    fmt.Sprintf("%x", m.Result.Bits.Bytes()),
	}
	for _, s := range m.Result.Steps {
		sr := stepRecord{Name: s.Name, Corrected: s.Corrected}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		}
		r.Steps = append(r.Steps, sr)
	}
	return r
}

// printer serializes messages from every channel onto one writer.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	yaml *yaml.Encoder
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case "text":
		return &printer{w: w}, nil
	case "yaml":
		return &printer{w: w, yaml: yaml.NewEncoder(w)}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

func (p *printer) print(m pipeline.Message) {
	r := newRecord(m)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.yaml != nil {
		if err := p.yaml.Encode(r); err != nil {
			log.Printf("[ERROR] Error encoding frame: %v", err)
		}
		return
	}
	fmt.Fprintf(p.w, "%s %s %s %s sync_errors=%d corrected=%d %s\n",
		r.Time.Format(time.RFC3339Nano), r.Channel, r.Pattern, r.Validity,
		r.SyncErrors, r.Corrected, r.Payload)
}
