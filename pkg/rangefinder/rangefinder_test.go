package rangefinder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
)

func TestWindowRunningMinimum(t *testing.T) {
	w := NewWindow(5)
	var filtered []int
	for _, raw := range []int{50, 48, 52, 49, 51} {
		filtered = append(filtered, w.Filter(raw))
	}
	assert.Equal(t, []int{50, 48, 48, 48, 48}, filtered)
}

func TestWindowDropsOldest(t *testing.T) {
	w := NewWindow(5)
	for _, raw := range []int{10, 60, 60, 60, 60} {
		w.Filter(raw)
	}
	// 10 is still one of the last five samples.
	assert.Equal(t, 10, w.Filter(70))
	// Now it has been pushed out.
	assert.Equal(t, 60, w.Filter(70))

	w.Reset()
	assert.Equal(t, 90, w.Filter(90))
}

func TestWindowSizeMustBePositive(t *testing.T) {
	assert.Panics(t, func() { NewWindow(0) })
}

type fakeSensor struct {
	mu       sync.Mutex
	readings []int
	pings    int
	offs     int
	readErr  error
}

func (f *fakeSensor) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeSensor) Read() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.readings) == 0 {
		return hub.NoReading, nil
	}
	r := f.readings[0]
	f.readings = f.readings[1:]
	return r, nil
}

func (f *fakeSensor) Off() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offs++
	return nil
}

var testRanging = config.Ranging{Window: 5, Settle: time.Millisecond}

func TestUnsupportedMountPanics(t *testing.T) {
	h := hub.New()
	defer h.Close()
	assert.Panics(t, func() { New(h, &fakeSensor{}, Mount(45), testRanging) })
	assert.NotPanics(t, func() { New(h, &fakeSensor{}, Right, testRanging) })
}

func TestFrontSeedsThenPublishes(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s := &fakeSensor{readings: []int{40, 41, 42, 43, 44, 60, 30}}
	p := New(h, s, Front, testRanging)
	ctx := context.Background()

	p.iterate(ctx)
	assert.False(t, p.Paused())
	assert.Equal(t, 6, s.pings, "five seed pings plus one sample")
	assert.Equal(t, 60, h.Distance(hub.Front))
	assert.Equal(t, 40, h.FilteredDistance(hub.Front))

	p.iterate(ctx)
	assert.Equal(t, 30, h.Distance(hub.Front))
	assert.Equal(t, 30, h.FilteredDistance(hub.Front))
}

func TestFrontIgnoresWallFollowing(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s := &fakeSensor{}
	p := New(h, s, Front, testRanging)

	p.iterate(context.Background())
	assert.Equal(t, 6, s.pings)
	assert.Zero(t, s.offs)
}

func TestSidePausesAndReseeds(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s := &fakeSensor{readings: []int{20, 20, 20, 20, 20, 25}}
	p := New(h, s, Left, testRanging)
	ctx := context.Background()

	h.SetWallFollowing(true)
	p.iterate(ctx)
	assert.Equal(t, 25, h.Distance(hub.Side))
	assert.Equal(t, 20, h.FilteredDistance(hub.Side))

	h.SetWallFollowing(false)
	p.iterate(ctx)
	p.iterate(ctx)
	assert.True(t, p.Paused())
	assert.Equal(t, 1, s.offs)
	assert.Equal(t, 6, s.pings, "no pings while paused")

	// The stale 20s must not leak into the filtered value after resuming.
	s.mu.Lock()
	s.readings = []int{80, 81, 82, 83, 84, 85}
	s.mu.Unlock()
	h.SetWallFollowing(true)
	p.iterate(ctx)
	assert.False(t, p.Paused())
	assert.Equal(t, 85, h.Distance(hub.Side))
	assert.Equal(t, 80, h.FilteredDistance(hub.Side))
}

func TestReadErrorsAreSkipped(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s := &fakeSensor{readErr: errors.New("bus error")}
	p := New(h, s, Front, testRanging)

	p.iterate(context.Background())
	assert.Equal(t, hub.NoReading, h.Distance(hub.Front))
	assert.Equal(t, hub.NoReading, h.FilteredDistance(hub.Front))
}

func TestLoopStopsOnCancel(t *testing.T) {
	h := hub.New()
	defer h.Close()
	p := New(h, &fakeSensor{}, Front, testRanging)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go p.Loop(ctx, &wg)
	time.Sleep(20 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "Loop didn't exit")
	}
}
