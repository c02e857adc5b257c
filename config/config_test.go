package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/icza/gog"
	"github.com/jancona/lmrdecode/framing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiChannel = `
profile = p25
lanes = 4
crc_trial_bits = 1

[framer]
policy = ignore
max_sync_errors = 3

[fec]
crc_trial_bits = 2

[channel]
name = control
input = control.f32.zst
policy = preempt

[channel]
name = simplex
profile = m17
input = /dev/ttyACM0
serial = true
serial_baud = 921600
format = s8
samples_per_symbol = 5
offset = 2
scale = 0.5
lanes = scalar
rx_freq = 433475000
freq_correction = -12
afc = true
reset_pin = 17
`

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lmr.ini")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadChannels(t *testing.T) {
	cfg, err := Load(writeFile(t, multiChannel))
	require.NoError(t, err)
	require.Len(t, cfg.Channels, 2)

	ctl := cfg.Channels[0]
	assert.Equal(t, "control", ctl.Name)
	assert.Equal(t, "p25", ctl.Profile)
	assert.Equal(t, "control.f32.zst", ctl.Input)
	assert.Equal(t, framing.Lanes4, ctl.Lanes)
	assert.Equal(t, gog.Ptr(framing.PolicyPreempt), ctl.Policy)
	assert.Equal(t, gog.Ptr(3), ctl.MaxSyncErrors)
	// the [fec] section wins over the default section
	assert.Equal(t, gog.Ptr(2), ctl.CRCTrialBits)
	assert.Nil(t, ctl.SoftSync)
	assert.False(t, ctl.Serial)
	assert.Equal(t, 1, ctl.SamplesPerSymbol)
	assert.Equal(t, 1.0, ctl.Scale)

	m17 := cfg.Channels[1]
	assert.Equal(t, "m17", m17.Profile)
	assert.True(t, m17.Serial)
	assert.Equal(t, 921600, m17.Baud)
	assert.Equal(t, "s8", m17.Format)
	assert.Equal(t, "f32", ctl.Format)
	assert.Equal(t, 5, m17.SamplesPerSymbol)
	assert.Equal(t, 2, m17.Offset)
	assert.Equal(t, 0.5, m17.Scale)
	assert.Equal(t, framing.Scalar, m17.Lanes)
	assert.Equal(t, gog.Ptr(framing.PolicyIgnore), m17.Policy)
	assert.Equal(t, uint32(433475000), m17.RXFreq)
	assert.Equal(t, int16(-12), m17.FreqCorrection)
	assert.True(t, m17.AFC)
	assert.Equal(t, 17, m17.ResetPin)
	assert.Equal(t, -1, m17.Boot0Pin)

	assert.Zero(t, ctl.RXFreq)
	assert.Equal(t, -1, ctl.ResetPin)
}

func TestLoadSingleChannel(t *testing.T) {
	cfg, err := Load([]byte("profile = nxdn\nsync_threshold = 28.5\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Channels, 1)
	ch := cfg.Channels[0]
	assert.Equal(t, "nxdn-1", ch.Name)
	assert.Equal(t, framing.Lanes8, ch.Lanes)
	assert.Equal(t, DefaultSerialBaud, ch.Baud)
	require.NotNil(t, ch.SyncThreshold)
	assert.Equal(t, 28.5, *ch.SyncThreshold)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"unknown profile", "profile = tetra\n"},
		{"bad lanes", "lanes = 3\n"},
		{"bad policy", "[framer]\npolicy = sometimes\n"},
		{"bad bool", "soft_sync = maybe\n"},
		{"trial bits", "[fec]\ncrc_trial_bits = 3\n"},
		{"offset", "[input]\nsamples_per_symbol = 4\noffset = 4\n"},
		{"samples", "samples_per_symbol = 0\n"},
		{"format", "[input]\nformat = wav\n"},
		{"bad float", "[channel]\nscale = loud\n"},
		{"rx freq", "rx_freq = -1\n"},
		{"freq correction", "[input]\nfreq_correction = 40000\n"},
		{"pin", "reset_pin = gpio17\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.contents))
			assert.Error(t, err)
		})
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}

func TestBuildProfile(t *testing.T) {
	cfg, err := Load([]byte(`
profile = nxdn
soft_sync = true
include_sync = true
max_sync_errors = 0
sync_threshold = 20
policy = preempt
`))
	require.NoError(t, err)
	p, err := cfg.Channels[0].BuildProfile()
	require.NoError(t, err)
	assert.True(t, p.SoftSync)
	assert.True(t, p.IncludeSync)
	assert.Equal(t, framing.PolicyPreempt, p.Policy)
	assert.Equal(t, 0, p.Syncs[0].Pattern.MaxBitErrors)
	assert.Equal(t, float32(20), p.Syncs[0].Pattern.Threshold)

	p, err = Channel{Profile: "p25", CRCTrialBits: gog.Ptr(0)}.BuildProfile()
	require.NoError(t, err)
	assert.Equal(t, "p25", p.Name)
	assert.True(t, p.FramerConfig().Policy == framing.PolicyPreempt)
}
