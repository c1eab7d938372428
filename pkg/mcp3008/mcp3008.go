// Package mcp3008 reads the MCP3008 10-bit ADC that digitises the floor
// reflectance sensor.
package mcp3008

import (
	"fmt"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

const NumChannels = 8

type conn interface {
	Tx(w, r []byte) error
}

type ADC struct {
	c    conn
	w, r []byte
}

// Open connects to the ADC on the given SPI device, e.g. "/dev/spidev0.0".
func Open(deviceFile string) (*ADC, error) {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p, err := spireg.Open(deviceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", deviceFile, err)
	}
	c, err := p.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP3008: %w", err)
	}
	return newADC(c), nil
}

func newADC(c conn) *ADC {
	return &ADC{c: c, w: make([]byte, 3), r: make([]byte, 3)}
}

// Read returns a single-ended conversion of channel, 0-1023.
func (a *ADC) Read(channel int) (int, error) {
	if channel < 0 || channel >= NumChannels {
		return 0, fmt.Errorf("no such MCP3008 channel %d", channel)
	}
	// Start bit, then single-ended mode and the channel, then clock out the
	// 10 result bits.
	a.w[0] = 0x01
	a.w[1] = byte(0x08|channel) << 4
	a.w[2] = 0
	if err := a.c.Tx(a.w, a.r); err != nil {
		return 0, err
	}
	return int(a.r[1]&0x03)<<8 | int(a.r[2]), nil
}

// Channel binds one input as a linedetect.Sensor.
type Channel struct {
	ADC *ADC
	N   int
}

func (c Channel) Sample() (int, error) {
	return c.ADC.Read(c.N)
}
