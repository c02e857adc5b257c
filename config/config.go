// Package config reads decoder settings from an INI file.
//
// Global keys live in the unnamed default section or in the [framer], [fec]
// and [input] sections. Each [channel] section describes one input and may
// override any key; a key missing from a channel falls back to its group
// section and then to the default section. A file without [channel]
// sections describes a single channel.
package config

import (
	"fmt"
	"math"

	"github.com/jancona/lmrdecode/framing"
	"github.com/jancona/lmrdecode/protocol"
	"gopkg.in/ini.v1"
)

const (
	DefaultSerialBaud = 460800
	DefaultProfile    = "p25"
)

// Channel is the resolved configuration of one input. Pointer fields are nil
// when the file leaves the profile default in place.
type Channel struct {
	Name    string
	Profile string
	// Input is a file path, "-" for stdin, or a serial device when
	// Serial is set.
	Input  string
	Serial bool
	Baud   int
	// RXFreq, when set, marks the input as a CC1200 hat to be tuned to
	// this frequency in Hz before it streams samples.
	RXFreq         uint32
	FreqCorrection int16
	AFC            bool
	GPIOChip       string
	// Hat control lines; -1 leaves a line alone.
	ResetPin    int
	PAEnablePin int
	Boot0Pin    int
	// Format is "f32" for little-endian float32 values or "s8" for the
	// signed 8-bit samples of a modem.
	Format string
	Lanes  framing.Lanes

	SamplesPerSymbol int
	Offset           int
	Scale            float64

	Policy        *framing.SyncPolicy
	SoftSync      *bool
	IncludeSync   *bool
	MaxSyncErrors *int
	SyncThreshold *float64
	CRCTrialBits  *int
}

type Config struct {
	Channels []Channel
}

// settings groups every key by the section that provides its fallback.
var groups = map[string]string{
	"policy":             "framer",
	"soft_sync":          "framer",
	"include_sync":       "framer",
	"max_sync_errors":    "framer",
	"sync_threshold":     "framer",
	"crc_trial_bits":     "fec",
	"samples_per_symbol": "input",
	"offset":             "input",
	"scale":              "input",
	"serial":             "input",
	"serial_baud":        "input",
	"format":             "input",
	"rx_freq":            "input",
	"freq_correction":    "input",
	"afc":                "input",
	"gpio_chip":          "input",
	"reset_pin":          "input",
	"pa_enable_pin":      "input",
	"boot0_pin":          "input",
}

type resolver struct {
	file     *ini.File
	defaults *ini.Section
}

// key finds setting in the channel section, then its group section, then
// the default section.
func (r resolver) key(setting string, section *ini.Section) (*ini.Key, bool) {
	if section != nil && section.HasKey(setting) {
		return section.Key(setting), true
	}
	if g, ok := groups[setting]; ok {
		if gs, err := r.file.GetSection(g); err == nil && gs.HasKey(setting) {
			return gs.Key(setting), true
		}
	}
	if r.defaults.HasKey(setting) {
		return r.defaults.Key(setting), true
	}
	return nil, false
}

func (r resolver) getString(setting string, section *ini.Section) (value string, ok bool) {
	k, ok := r.key(setting, section)
	if ok {
		value = k.String()
	}
	return
}

func (r resolver) getInt(setting string, section *ini.Section) (value int, ok bool, err error) {
	k, ok := r.key(setting, section)
	if ok {
		value, err = k.Int()
	}
	return
}

func (r resolver) getFloat64(setting string, section *ini.Section) (value float64, ok bool, err error) {
	k, ok := r.key(setting, section)
	if ok {
		value, err = k.Float64()
	}
	return
}

func (r resolver) getBool(setting string, section *ini.Section) (value bool, ok bool, err error) {
	k, ok := r.key(setting, section)
	if ok {
		value, err = k.Bool()
	}
	return
}

// Load reads an INI file. source may be a path or raw []byte contents.
func Load(source any) (*Config, error) {
	file, err := ini.LoadSources(
		ini.LoadOptions{
			AllowNonUniqueSections: true,
		},
		source,
	)
	if err != nil {
		return nil, err
	}
	file.BlockMode = false
	defaults, err := file.GetSection("")
	if err != nil {
		return nil, err
	}
	r := resolver{file: file, defaults: defaults}

	sections, err := file.SectionsByName("channel")
	if err != nil {
		// no channel sections: the defaults describe the only channel
		sections = []*ini.Section{nil}
	}
	cfg := &Config{}
	for i, section := range sections {
		ch, err := r.channel(section)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i+1, err)
		}
		if ch.Name == "" {
			ch.Name = fmt.Sprintf("%s-%d", ch.Profile, i+1)
		}
		cfg.Channels = append(cfg.Channels, ch)
	}
	return cfg, nil
}

func (r resolver) channel(section *ini.Section) (ch Channel, err error) {
	ch.Name, _ = r.getString("name", section)
	ch.Profile = DefaultProfile
	if s, ok := r.getString("profile", section); ok {
		ch.Profile = s
	}
	if _, err = protocol.Lookup(ch.Profile); err != nil {
		return
	}
	ch.Input, _ = r.getString("input", section)

	ch.Lanes = framing.Lanes8
	if s, ok := r.getString("lanes", section); ok {
		if ch.Lanes, err = framing.ParseLanes(s); err != nil {
			return
		}
	}

	if s, ok := r.getString("policy", section); ok {
		var p framing.SyncPolicy
		if p, err = framing.ParseSyncPolicy(s); err != nil {
			return
		}
		ch.Policy = &p
	}
	if ch.SoftSync, err = optional(r.getBool("soft_sync", section)); err != nil {
		return
	}
	if ch.IncludeSync, err = optional(r.getBool("include_sync", section)); err != nil {
		return
	}
	if ch.MaxSyncErrors, err = optional(r.getInt("max_sync_errors", section)); err != nil {
		return
	}
	if ch.SyncThreshold, err = optional(r.getFloat64("sync_threshold", section)); err != nil {
		return
	}
	if ch.CRCTrialBits, err = optional(r.getInt("crc_trial_bits", section)); err != nil {
		return
	}
	if ch.CRCTrialBits != nil && (*ch.CRCTrialBits < 0 || *ch.CRCTrialBits > 2) {
		err = fmt.Errorf("crc_trial_bits must be 0, 1 or 2, got %d", *ch.CRCTrialBits)
		return
	}

	ch.SamplesPerSymbol = 1
	if v, ok, e := r.getInt("samples_per_symbol", section); e != nil {
		err = e
		return
	} else if ok {
		ch.SamplesPerSymbol = v
	}
	if ch.SamplesPerSymbol < 1 {
		err = fmt.Errorf("samples_per_symbol must be at least 1, got %d", ch.SamplesPerSymbol)
		return
	}
	if ch.Offset, _, err = r.getInt("offset", section); err != nil {
		return
	}
	if ch.Offset < 0 || ch.Offset >= ch.SamplesPerSymbol {
		err = fmt.Errorf("offset must be between 0 and %d", ch.SamplesPerSymbol-1)
		return
	}
	ch.Scale = 1
	if v, ok, e := r.getFloat64("scale", section); e != nil {
		err = e
		return
	} else if ok {
		ch.Scale = v
	}
	if ch.Serial, _, err = r.getBool("serial", section); err != nil {
		return
	}
	ch.Format = "f32"
	if s, ok := r.getString("format", section); ok {
		ch.Format = s
	}
	if ch.Format != "f32" && ch.Format != "s8" {
		err = fmt.Errorf("format must be f32 or s8, got %q", ch.Format)
		return
	}
	ch.Baud = DefaultSerialBaud
	if v, ok, e := r.getInt("serial_baud", section); e != nil {
		err = e
		return
	} else if ok {
		ch.Baud = v
	}
	err = r.modem(section, &ch)
	return
}

func (r resolver) modem(section *ini.Section, ch *Channel) error {
	freq, _, err := r.getInt("rx_freq", section)
	if err != nil {
		return err
	}
	if freq < 0 || int64(freq) > math.MaxUint32 {
		return fmt.Errorf("rx_freq %d out of range", freq)
	}
	ch.RXFreq = uint32(freq)
	corr, _, err := r.getInt("freq_correction", section)
	if err != nil {
		return err
	}
	if corr < math.MinInt16 || corr > math.MaxInt16 {
		return fmt.Errorf("freq_correction %d out of range", corr)
	}
	ch.FreqCorrection = int16(corr)
	if ch.AFC, _, err = r.getBool("afc", section); err != nil {
		return err
	}
	ch.GPIOChip, _ = r.getString("gpio_chip", section)
	for key, pin := range map[string]*int{
		"reset_pin":     &ch.ResetPin,
		"pa_enable_pin": &ch.PAEnablePin,
		"boot0_pin":     &ch.Boot0Pin,
	} {
		v, ok, err := r.getInt(key, section)
		if err != nil {
			return err
		}
		*pin = -1
		if ok {
			*pin = v
		}
	}
	return nil
}

func optional[T any](v T, ok bool, err error) (*T, error) {
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// BuildProfile returns the channel's protocol profile with overrides applied.
func (c Channel) BuildProfile() (*protocol.Profile, error) {
	p, err := protocol.Lookup(c.Profile)
	if err != nil {
		return nil, err
	}
	if c.Policy != nil {
		p.Policy = *c.Policy
	}
	if c.SoftSync != nil {
		p.SoftSync = *c.SoftSync
	}
	if c.IncludeSync != nil {
		p.IncludeSync = *c.IncludeSync
	}
	if c.MaxSyncErrors != nil {
		p.SetMaxSyncErrors(*c.MaxSyncErrors)
	}
	if c.SyncThreshold != nil {
		p.SetSyncThreshold(float32(*c.SyncThreshold))
	}
	if c.CRCTrialBits != nil {
		p.SetCRCTrialBits(*c.CRCTrialBits)
	}
	return p, nil
}
