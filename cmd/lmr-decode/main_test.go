package main

import (
	"bytes"
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/jancona/lmrdecode/bits"
	"github.com/jancona/lmrdecode/framing"
	"github.com/jancona/lmrdecode/pipeline"
	"github.com/jancona/lmrdecode/protocol"
	"gopkg.in/yaml.v3"
)

func testMessage() pipeline.Message {
	v := bits.MustParse("1010010111110000")
	return pipeline.Message{
		Channel: "simplex",
		Frame: framing.Frame{
			Bits:       v,
			Pattern:    framing.M17Packet,
			Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			SyncErrors: 1,
		},
		Result: protocol.Result{
			Bits:      v,
			Corrected: 2,
			Validity:  protocol.Invalid,
			Steps: []protocol.StepResult{
				{Name: "M17 packet", Corrected: 2},
				{Name: "crc M17", Err: errors.New("checksum mismatch")},
			},
		},
	}
}

func TestPrinterText(t *testing.T) {
	var buf bytes.Buffer
	p, err := newPrinter(&buf, "text")
	if err != nil {
		t.Fatal(err)
	}
	p.print(testMessage())
	want := "2024-05-01T12:00:00Z simplex M17 packet invalid sync_errors=1 corrected=2 a5f0\n"
	if got := buf.String(); got != want {
		t.Errorf("text output = %q, want %q", got, want)
	}
}

func TestPrinterYAML(t *testing.T) {
	var buf bytes.Buffer
	p, err := newPrinter(&buf, "yaml")
	if err != nil {
		t.Fatal(err)
	}
	p.print(testMessage())

	var got frameRecord
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Validity != "invalid" || got.Payload != "a5f0" || got.Bits != 16 {
		t.Errorf("decoded record = %+v", got)
	}
	if len(got.Steps) != 2 || got.Steps[1].Error != "checksum mismatch" || got.Steps[0].Corrected != 2 {
		t.Errorf("steps = %+v", got.Steps)
	}
}

func TestPrinterFormat(t *testing.T) {
	if _, err := newPrinter(&bytes.Buffer{}, "json"); err == nil {
		t.Errorf("newPrinter(json) returned no error")
	}
}

func TestLoadConfigFlags(t *testing.T) {
	for name, value := range map[string]string{
		"profile": "m17",
		"in":      "/dev/ttyUSB0",
		"serial":  "true",
		"sps":     "5",
		"offset":  "2",
		"format":  "s8",
	} {
		if err := flag.Set(name, value); err != nil {
			t.Fatal(err)
		}
	}
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Channels) != 1 {
		t.Fatalf("got %d channels, want 1", len(cfg.Channels))
	}
	ch := cfg.Channels[0]
	if ch.Name != "m17-1" || ch.Input != "/dev/ttyUSB0" || !ch.Serial || ch.SamplesPerSymbol != 5 ||
		ch.Offset != 2 || ch.Format != "s8" || ch.Baud != 460800 {
		t.Errorf("loadConfig() channel = %+v", ch)
	}

	if err := flag.Set("offset", "5"); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(); err == nil {
		t.Errorf("loadConfig() with offset 5 of 5 returned no error")
	}
}
