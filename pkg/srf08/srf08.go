// Package srf08 drives an SRF08 ultrasonic ranger over I2C.
package srf08

import (
	"fmt"
	"time"

	"golang.org/x/exp/io/i2c"
)

const (
	RegCommand = 0
	RegGain    = 1
	// Writing RegRange sets the maximum range; reading it gives the high
	// byte of the first echo.
	RegRange   = 2
	RegRangeLo = 3

	CmdRangeCM = 0x51

	// MaxCM is reported when nothing echoes.
	MaxCM = 255

	// Each step of the range register adds this much reach.
	rangeStepMM        = 43
	speedOfSoundMMPerS = 343000
)

type port interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
	Close() error
}

type Ranger struct {
	dev port
}

// New opens the ranger at addr on the bus deviceFile.
func New(deviceFile string, addr int) (*Ranger, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open SRF08 at %#x: %w", addr, err)
	}
	return &Ranger{dev: dev}, nil
}

// Ping starts a ranging in cm.  The result is ready after about 65ms at full
// range, less if the maximum range is reduced.
func (r *Ranger) Ping() error {
	return r.dev.WriteReg(RegCommand, []byte{CmdRangeCM})
}

// Read returns the distance to the first echo in cm, or MaxCM if there was
// none.
func (r *Ranger) Read() (int, error) {
	buf := make([]byte, 2)
	if err := r.dev.ReadReg(RegRange, buf); err != nil {
		return 0, err
	}
	cm := int(buf[0])<<8 | int(buf[1])
	if cm == 0 || cm > MaxCM {
		return MaxCM, nil
	}
	return cm, nil
}

// SetMaxRange limits the echo window so a ping settles sooner.  Range is
// (value+1)*43mm.
func (r *Ranger) SetMaxRange(value byte) error {
	return r.dev.WriteReg(RegRange, []byte{value})
}

// LimitRange sets the smallest maximum range that still reaches cm.  The
// setting is lost when the sensor powers off.
func (r *Ranger) LimitRange(cm int) error {
	return r.SetMaxRange(RangeRegister(cm))
}

// RangeRegister is the range register value that reaches at least cm.
func RangeRegister(cm int) byte {
	v := (cm*10+rangeStepMM-1)/rangeStepMM - 1
	if v < 0 {
		return 0
	} else if v > 255 {
		return 255
	}
	return byte(v)
}

// RangingTime is how long a ping takes to finish with the range limited to
// cm.  The sensor doesn't answer on the bus until then.
func RangingTime(cm int) time.Duration {
	reachMM := (int(RangeRegister(cm)) + 1) * rangeStepMM
	return time.Duration(2*reachMM) * time.Second / speedOfSoundMMPerS
}

func (r *Ranger) Close() error {
	return r.dev.Close()
}
