package framing

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jancona/lmrdecode/bits"
)

// ErrUnknownPattern is returned when a trigger names a pattern the framer
// was not configured with.
var ErrUnknownPattern = errors.New("pattern not configured")

// SyncPolicy decides what happens when a sync pattern appears while a frame
// is still being captured.
type SyncPolicy int

const (
	// PolicyIgnore does not look for sync until the current frame is complete.
	PolicyIgnore SyncPolicy = iota
	// PolicyPreempt abandons the partial frame and starts a new one.
	PolicyPreempt
)

func (p SyncPolicy) String() string {
	if p == PolicyPreempt {
		return "preempt"
	}
	return "ignore"
}

func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ignore":
		return PolicyIgnore, nil
	case "preempt":
		return PolicyPreempt, nil
	}
	return PolicyIgnore, fmt.Errorf("unknown sync policy %q", s)
}

type State int

const (
	Searching State = iota
	Capturing
)

func (s State) String() string {
	if s == Capturing {
		return "capturing"
	}
	return "searching"
}

// Frame is a captured message. Every listener receives the same Bits, which
// must be treated as read-only.
type Frame struct {
	Bits      *bits.Vector
	Pattern   *SyncPattern
	Timestamp time.Time
	// SyncErrors is the Hamming distance of the matched sync, or -1 when the
	// capture was started by Trigger.
	SyncErrors int
	// Score is the correlation score passed to Trigger.
	Score float32
}

type FrameListener interface {
	FrameReceived(Frame)
}

// FrameListenerFunc adapts a function to FrameListener.
type FrameListenerFunc func(Frame)

func (f FrameListenerFunc) FrameReceived(fr Frame) {
	f(fr)
}

// SyncEvent reports the start of a capture.
type SyncEvent struct {
	Pattern   *SyncPattern
	Errors    int
	Score     float32
	Preempted bool
}

// SyncConfig ties a pattern to the frame that follows it. Lookback bits
// received before the sync are prepended to the frame.
type SyncConfig struct {
	Pattern   *SyncPattern
	FrameBits int
	Lookback  int
}

type FramerConfig struct {
	Syncs []SyncConfig
	// IncludeSync puts the sync bits at the start of each frame, after any
	// lookback bits.
	IncludeSync bool
	Policy      SyncPolicy
	// ExternalSync disables Hamming detection; captures start only through
	// Trigger.
	ExternalSync bool
	OnSync       func(SyncEvent)
	Clock        func() time.Time
}

// Framer turns a bit stream into frames. It is not safe for concurrent use.
type Framer struct {
	cfg       FramerConfig
	listeners []FrameListener

	state    State
	reg      uint64
	history  []bool
	hpos     int
	received int

	active     *SyncConfig
	frame      *bits.Vector
	fill       int
	syncErrors int
	score      float32
	started    time.Time
}

func NewFramer(cfg FramerConfig) (*Framer, error) {
	if len(cfg.Syncs) == 0 {
		return nil, errors.New("framer needs at least one sync pattern")
	}
	span := 1
	for i, s := range cfg.Syncs {
		if s.Pattern == nil {
			return nil, fmt.Errorf("sync %d has no pattern", i)
		}
		if s.FrameBits <= 0 || s.Lookback < 0 {
			return nil, fmt.Errorf("%s: frame bits %d, lookback %d", s.Pattern.Name, s.FrameBits, s.Lookback)
		}
		span = max(span, s.Lookback+s.Pattern.Length)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	cfg.Syncs = append([]SyncConfig(nil), cfg.Syncs...)
	return &Framer{
		cfg:     cfg,
		history: make([]bool, span),
	}, nil
}

func (f *Framer) AddListener(l FrameListener) {
	f.listeners = append(f.listeners, l)
}

func (f *Framer) State() State {
	return f.state
}

// Reset drops any partial frame and all sync history.
func (f *Framer) Reset() {
	f.state = Searching
	f.reg = 0
	f.received = 0
	f.hpos = 0
	for i := range f.history {
		f.history[i] = false
	}
	f.active = nil
	f.frame = nil
	f.fill = 0
}

// ReceiveDibit feeds two bits, most significant first.
func (f *Framer) ReceiveDibit(d byte) {
	f.ReceiveBit(d&2 != 0)
	f.ReceiveBit(d&1 != 0)
}

func (f *Framer) ReceiveBits(b []bool) {
	for _, x := range b {
		f.ReceiveBit(x)
	}
}

func (f *Framer) ReceiveBit(b bool) {
	f.reg <<= 1
	if b {
		f.reg |= 1
	}
	f.history[f.hpos] = b
	f.hpos++
	if f.hpos == len(f.history) {
		f.hpos = 0
	}
	f.received++

	if f.state == Capturing {
		if f.cfg.Policy == PolicyPreempt {
			if sc, d := f.match(); sc != nil {
				log.Printf("[DEBUG] %s sync during capture of %s at bit %d, restarting", sc.Pattern.Name, f.active.Pattern.Name, f.fill)
				f.start(sc, d, 0, true)
				return
			}
		}
		if b {
			_ = f.frame.Set(f.fill, true)
		}
		f.fill++
		if f.fill == f.frame.Len() {
			f.dispatch()
		}
		return
	}

	if sc, d := f.match(); sc != nil {
		f.start(sc, d, 0, false)
	}
}

// Trigger starts a capture for p as if its sync had just been received. It
// reports whether a capture was started; under PolicyIgnore a trigger during
// capture is dropped.
func (f *Framer) Trigger(p *SyncPattern, score float32) (bool, error) {
	var sc *SyncConfig
	for i := range f.cfg.Syncs {
		if f.cfg.Syncs[i].Pattern.Name == p.Name {
			sc = &f.cfg.Syncs[i]
			break
		}
	}
	if sc == nil {
		return false, fmt.Errorf("%s: %w", p.Name, ErrUnknownPattern)
	}
	preempt := f.state == Capturing
	if preempt && f.cfg.Policy == PolicyIgnore {
		return false, nil
	}
	f.start(sc, -1, score, preempt)
	return true, nil
}

// match returns the configured pattern closest to the register, if any is
// within its error tolerance. Ties go to the earlier pattern.
func (f *Framer) match() (*SyncConfig, int) {
	if f.cfg.ExternalSync {
		return nil, 0
	}
	var best *SyncConfig
	bestD := 0
	for i := range f.cfg.Syncs {
		sc := &f.cfg.Syncs[i]
		if f.received < sc.Pattern.Length {
			continue
		}
		d := sc.Pattern.Distance(f.reg)
		if d <= sc.Pattern.MaxBitErrors && (best == nil || d < bestD) {
			best, bestD = sc, d
		}
	}
	return best, bestD
}

// historyBit returns the bit received back bits ago, 0 being the newest.
func (f *Framer) historyBit(back int) bool {
	if back >= f.received || back >= len(f.history) {
		return false
	}
	i := f.hpos - 1 - back
	if i < 0 {
		i += len(f.history)
	}
	return f.history[i]
}

func (f *Framer) start(sc *SyncConfig, errs int, score float32, preempted bool) {
	prefix := sc.Lookback
	if f.cfg.IncludeSync {
		prefix += sc.Pattern.Length
	}
	f.frame = bits.New(prefix + sc.FrameBits)
	// lookback bits and the sync itself are the newest Lookback+Length bits
	for j := 0; j < prefix; j++ {
		if f.historyBit(sc.Lookback + sc.Pattern.Length - 1 - j) {
			_ = f.frame.Set(j, true)
		}
	}
	f.fill = prefix
	f.active = sc
	f.syncErrors = errs
	f.score = score
	f.started = f.cfg.Clock()
	f.state = Capturing
	if f.cfg.OnSync != nil {
		f.cfg.OnSync(SyncEvent{Pattern: sc.Pattern, Errors: errs, Score: score, Preempted: preempted})
	}
}

func (f *Framer) dispatch() {
	fr := Frame{
		Bits:       f.frame,
		Pattern:    f.active.Pattern,
		Timestamp:  f.started,
		SyncErrors: f.syncErrors,
		Score:      f.score,
	}
	f.state = Searching
	f.frame = nil
	f.active = nil
	f.fill = 0
	for _, l := range f.listeners {
		l.FrameReceived(fr)
	}
}
