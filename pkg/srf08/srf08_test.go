package srf08

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDev struct {
	regs    [4]byte
	writes  [][2]byte
	readErr error
	closed  bool
}

func (f *fakeDev) ReadReg(reg byte, buf []byte) error {
	if f.readErr != nil {
		return f.readErr
	}
	copy(buf, f.regs[reg:])
	return nil
}

func (f *fakeDev) WriteReg(reg byte, buf []byte) error {
	f.writes = append(f.writes, [2]byte{reg, buf[0]})
	return nil
}

func (f *fakeDev) Close() error {
	f.closed = true
	return nil
}

func TestPing(t *testing.T) {
	dev := &fakeDev{}
	r := &Ranger{dev: dev}

	require.NoError(t, r.Ping())
	require.NoError(t, r.SetMaxRange(24))
	assert.Equal(t, [][2]byte{{RegCommand, CmdRangeCM}, {RegRange, 24}}, dev.writes)
}

func TestRead(t *testing.T) {
	dev := &fakeDev{}
	r := &Ranger{dev: dev}

	for _, tc := range []struct {
		hi, lo   byte
		expected int
	}{
		{0, 42, 42},
		{0, 255, 255},
		{1, 10, MaxCM},
		{0, 0, MaxCM},
	} {
		dev.regs[RegRange] = tc.hi
		dev.regs[RegRangeLo] = tc.lo
		cm, err := r.Read()
		require.NoError(t, err)
		assert.Equal(t, tc.expected, cm, "registers %d %d", tc.hi, tc.lo)
	}

	dev.readErr = errors.New("nack")
	_, err := r.Read()
	assert.ErrorIs(t, err, dev.readErr)

	require.NoError(t, r.Close())
	assert.True(t, dev.closed)
}

func TestLimitRange(t *testing.T) {
	dev := &fakeDev{}
	r := &Ranger{dev: dev}

	require.NoError(t, r.LimitRange(MaxCM))
	assert.Equal(t, [][2]byte{{RegRange, 59}}, dev.writes)
}

func TestRangeRegister(t *testing.T) {
	for _, tc := range []struct {
		cm       int
		expected byte
	}{
		{0, 0},
		{4, 0},
		{5, 1},
		{100, 23},
		{MaxCM, 59},
		{1100, 255},
		{5000, 255},
	} {
		assert.Equal(t, tc.expected, RangeRegister(tc.cm), "%dcm", tc.cm)
	}
}

func TestRangingTime(t *testing.T) {
	// 60 steps of 43mm, there and back.
	assert.InDelta(t, 15.04, RangingTime(MaxCM).Seconds()*1000, 0.01)
	// The power-on setting.
	assert.InDelta(t, 64.2, RangingTime(1100).Seconds()*1000, 0.1)
	assert.Less(t, RangingTime(100), RangingTime(MaxCM))
}
