package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/jancona/lmrdecode/config"
	"golang.org/x/sync/errgroup"
)

// Input pairs a channel with the reader that feeds it.
type Input struct {
	Channel *Channel
	Reader  io.Reader
	Config  config.Channel
}

// Run decodes every input concurrently until all readers are exhausted. The
// first error cancels the remaining channels and is returned.
func Run(ctx context.Context, inputs ...Input) error {
	samples := make([]chan float32, len(inputs))
	symbols := make([]chan float32, len(inputs))
	for i, in := range inputs {
		samples[i] = make(chan float32, 4096)
		var err error
		symbols[i], err = Conditioner(samples[i], in.Config, in.Channel.Profile().RollOff)
		if err != nil {
			for _, s := range samples[:i+1] {
				close(s)
			}
			return fmt.Errorf("%s: %w", in.Channel.Name, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		g.Go(func() error {
			return ReadSamples(ctx, in.Reader, in.Config.Format, samples[i])
		})
		g.Go(func() error {
			return in.Channel.Run(ctx, symbols[i])
		})
	}
	return g.Wait()
}
