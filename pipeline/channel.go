// Package pipeline connects symbol sources to framers and decode chains, one
// independent pipeline per radio channel.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/jancona/lmrdecode/framing"
	"github.com/jancona/lmrdecode/protocol"
)

// Message is a decoded frame delivered to the handler.
type Message struct {
	Channel string
	Frame   framing.Frame
	Result  protocol.Result
}

type Handler func(Message)

// Channel decodes one stream of soft symbols. It is not safe for concurrent
// use; run one goroutine per channel.
type Channel struct {
	Name    string
	profile *protocol.Profile
	framer  *framing.Framer
	metrics *Metrics
	handler Handler

	correlators []*framing.Correlator
	above       []bool
}

// NewChannel builds the framer and, for soft sync profiles, one correlator
// per sync pattern. m may be nil.
func NewChannel(name string, p *protocol.Profile, lanes framing.Lanes, m *Metrics, h Handler) (*Channel, error) {
	c := &Channel{
		Name:    name,
		profile: p,
		metrics: m,
		handler: h,
	}
	cfg := p.FramerConfig()
	cfg.OnSync = c.syncDetected
	f, err := framing.NewFramer(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	f.AddListener(framing.FrameListenerFunc(c.frameReceived))
	c.framer = f
	if p.SoftSync {
		for _, s := range p.Syncs {
			corr, err := framing.NewCorrelator(s.Pattern, lanes)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			c.correlators = append(c.correlators, corr)
		}
		c.above = make([]bool, len(c.correlators))
	}
	return c, nil
}

func (c *Channel) Profile() *protocol.Profile {
	return c.profile
}

// ReceiveSymbol slices one soft symbol into the framer, then runs the soft
// detectors so a trigger starts the capture after the sync's last symbol.
func (c *Channel) ReceiveSymbol(sym float32) {
	c.framer.ReceiveDibit(c.profile.Alphabet.Slice(sym))
	for i, corr := range c.correlators {
		score := corr.Process(sym)
		p := corr.Pattern()
		above := score >= p.Threshold
		if above && !c.above[i] {
			if _, err := c.framer.Trigger(p, score); err != nil {
				log.Printf("[ERROR] %s: %v", c.Name, err)
			}
		}
		c.above[i] = above
	}
}

func (c *Channel) ReceiveSymbols(syms []float32) {
	for _, s := range syms {
		c.ReceiveSymbol(s)
	}
}

// Reset discards any partial frame and all symbol history.
func (c *Channel) Reset() {
	c.framer.Reset()
	for i, corr := range c.correlators {
		corr.Reset()
		c.above[i] = false
	}
}

// Run feeds symbols until src is closed or ctx is done.
func (c *Channel) Run(ctx context.Context, src <-chan float32) error {
	for {
		select {
		case <-ctx.Done():
			// let upstream stages finish
			go func() {
				for range src {
				}
			}()
			return ctx.Err()
		case sym, ok := <-src:
			if !ok {
				return nil
			}
			c.ReceiveSymbol(sym)
		}
	}
}

func (c *Channel) syncDetected(e framing.SyncEvent) {
	if e.Errors >= 0 {
		log.Printf("[DEBUG] %s: %s sync, %d bit errors", c.Name, e.Pattern.Name, e.Errors)
	} else {
		log.Printf("[DEBUG] %s: %s sync, score %.2f", c.Name, e.Pattern.Name, e.Score)
	}
	c.metrics.syncDetected(c.profile.Name, e.Pattern.Name, e.Preempted)
}

func (c *Channel) frameReceived(f framing.Frame) {
	r := c.profile.Decode(f)
	c.metrics.frameDecoded(c.profile.Name, f.Pattern.Name, r)
	if c.handler != nil {
		c.handler(Message{Channel: c.Name, Frame: f, Result: r})
	}
}
