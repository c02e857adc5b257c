package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"time"
)

// CC1200 hat commands
const (
	cmdPing = iota
	cmdSetRXFreq
	cmdSetTXFreq
	cmdSetTXPower
	cmdSetReserved
	cmdSetFreqCorr
	cmdSetAFC
	cmdSetTXStart
	cmdSetRX
)

// ModemConfig tunes a CC1200 hat for receive. Pins below zero are not
// driven.
type ModemConfig struct {
	RXFreq         uint32
	FreqCorrection int16
	AFC            bool

	GPIOChip    string
	ResetPin    int
	PAEnablePin int
	Boot0Pin    int
}

type Line interface {
	SetValue(value int) error
	Close() error
}

// Modem is a CC1200 hat in receive mode. Read returns its signed 8-bit
// samples.
type Modem struct {
	port     io.ReadWriteCloser
	nRST     Line
	paEnable Line
	boot0    Line
	rx       bool
}

// modemBootDelay is how long the hat takes to boot after a reset.
var modemBootDelay = time.Second

// NewModem checks that the hat answers, tunes it and starts receiving.
// lines may be nil when the hat is emulated.
func NewModem(port io.ReadWriteCloser, cfg ModemConfig, lines []Line) (*Modem, error) {
	m := newModem(port, lines)
	if err := m.start(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

func newModem(port io.ReadWriteCloser, lines []Line) *Modem {
	m := &Modem{port: port}
	if len(lines) == 3 {
		m.nRST, m.paEnable, m.boot0 = lines[0], lines[1], lines[2]
	}
	return m
}

func (m *Modem) start(cfg ModemConfig) error {
	if _, err := m.commandWithResponse([]byte{cmdPing, 0}); err != nil {
		return fmt.Errorf("test PING: %w", err)
	}
	if err := m.SetRXFreq(cfg.RXFreq); err != nil {
		return err
	}
	if err := m.SetFreqCorrection(cfg.FreqCorrection); err != nil {
		return err
	}
	if err := m.SetAFC(cfg.AFC); err != nil {
		return err
	}
	return m.StartRX()
}

func (m *Modem) Read(buf []byte) (int, error) {
	return m.port.Read(buf)
}

// Reset pulses the hat's reset line.
func (m *Modem) Reset() error {
	log.Print("[DEBUG] modem Reset()")
	err1 := setLine(m.boot0, false)
	err2 := setLine(m.paEnable, false)
	err3 := setLine(m.nRST, false)
	time.Sleep(50 * time.Millisecond)
	err4 := setLine(m.nRST, true)
	if errs := errors.Join(err1, err2, err3, err4); errs != nil {
		return fmt.Errorf("modem reset: %w", errs)
	}
	return nil
}

func (m *Modem) Close() error {
	log.Print("[DEBUG] modem Close()")
	err := m.StopRX()
	for _, l := range []Line{m.nRST, m.paEnable, m.boot0} {
		if l != nil {
			err = errors.Join(err, l.Close())
		}
	}
	return errors.Join(err, m.port.Close())
}

func (m *Modem) StartRX() error {
	log.Printf("[DEBUG] StartRX()")
	if err := m.command([]byte{cmdSetRX, 0, 1}); err != nil {
		return fmt.Errorf("send set RX start: %w", err)
	}
	m.rx = true
	return nil
}

// stopRXTimeout bounds the stop command on ports with write deadlines, since
// a peer may have stopped reading.
var stopRXTimeout = time.Second

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// StopRX leaves receive mode. The hat's answer is lost among the samples.
func (m *Modem) StopRX() error {
	if !m.rx {
		return nil
	}
	log.Printf("[DEBUG] StopRX()")
	if d, ok := m.port.(writeDeadliner); ok {
		if err := d.SetWriteDeadline(time.Now().Add(stopRXTimeout)); err == nil {
			defer d.SetWriteDeadline(time.Time{})
		}
	}
	m.rx = false
	if err := m.command([]byte{cmdSetRX, 0, 0}); err != nil {
		return fmt.Errorf("send set RX stop: %w", err)
	}
	return nil
}

func (m *Modem) SetRXFreq(freq uint32) error {
	log.Printf("[DEBUG] SetRXFreq(%v)", freq)
	cmd := binary.LittleEndian.AppendUint32([]byte{cmdSetRXFreq, 0}, freq)
	if err := m.commandWithErrResponse(cmd); err != nil {
		return fmt.Errorf("send set RX freq: %w", err)
	}
	return nil
}

func (m *Modem) SetAFC(afc bool) error {
	log.Printf("[DEBUG] SetAFC(%v)", afc)
	var a byte
	if afc {
		a = 1
	}
	if err := m.commandWithErrResponse([]byte{cmdSetAFC, 0, a}); err != nil {
		return fmt.Errorf("send set AFC: %w", err)
	}
	return nil
}

func (m *Modem) SetFreqCorrection(corr int16) error {
	log.Printf("[DEBUG] SetFreqCorrection(%v)", corr)
	cmd := binary.LittleEndian.AppendUint16([]byte{cmdSetFreqCorr, 0}, uint16(corr))
	if err := m.commandWithErrResponse(cmd); err != nil {
		return fmt.Errorf("send set freq corr: %w", err)
	}
	return nil
}

func (m *Modem) commandWithErrResponse(cmd []byte) error {
	resp, err := m.commandWithResponse(cmd)
	if err != nil {
		return err
	}
	var respErr uint32
	switch len(resp) {
	case 1:
		respErr = uint32(resp[0])
	case 4:
		respErr = binary.LittleEndian.Uint32(resp)
	default:
		return fmt.Errorf("unexpected response: % x", resp)
	}
	if respErr != 0 {
		return fmt.Errorf("modem response: %d", respErr)
	}
	return nil
}

// command fills in the length byte and sends cmd.
func (m *Modem) command(cmd []byte) error {
	if len(cmd) < 2 {
		return fmt.Errorf("command length %d < 2", len(cmd))
	}
	cmd[1] = byte(len(cmd))
	log.Printf("[DEBUG] modem command(): % 2x", cmd)
	if _, err := m.port.Write(cmd); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}

// commandWithResponse sends cmd and returns the payload of the answer.
func (m *Modem) commandWithResponse(cmd []byte) ([]byte, error) {
	if err := m.command(cmd); err != nil {
		return nil, err
	}
	head := make([]byte, 2)
	if _, err := io.ReadFull(m.port, head); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if head[0] != cmd[0] || head[1] < 2 {
		return nil, fmt.Errorf("unexpected response header % x to command %d", head, cmd[0])
	}
	resp := make([]byte, head[1]-2)
	if _, err := io.ReadFull(m.port, resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	log.Printf("[DEBUG] commandWithResponse() received: % 2x", resp)
	return resp, nil
}

func setLine(l Line, set bool) error {
	if l == nil {
		return nil
	}
	if set {
		return l.SetValue(1)
	}
	return l.SetValue(0)
}
