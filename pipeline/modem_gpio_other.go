//go:build !linux

package pipeline

import "errors"

func gpioSetup(cfg ModemConfig) ([]Line, error) {
	if cfg.ResetPin < 0 {
		return nil, nil
	}
	return nil, errors.New("modem GPIO control requires linux")
}
