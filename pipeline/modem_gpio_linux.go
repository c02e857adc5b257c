//go:build linux

package pipeline

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// gpioSetup claims the hat's control lines and takes it through a reset.
// It returns nil when no reset pin is configured.
func gpioSetup(cfg ModemConfig) ([]Line, error) {
	if cfg.ResetPin < 0 {
		return nil, nil
	}
	chip := cfg.GPIOChip
	if chip == "" {
		chip = "gpiochip0"
	}
	var lines []Line
	for _, pin := range []int{cfg.ResetPin, cfg.PAEnablePin, cfg.Boot0Pin} {
		if pin < 0 {
			lines = append(lines, nil)
			continue
		}
		l, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
		if err != nil {
			closeLines(lines)
			return nil, fmt.Errorf("request line %d: %w", pin, err)
		}
		lines = append(lines, l)
	}
	time.Sleep(50 * time.Millisecond)
	if err := setLine(lines[0], true); err != nil {
		closeLines(lines)
		return nil, fmt.Errorf("set NRST: %w", err)
	}
	time.Sleep(modemBootDelay)
	return lines, nil
}
