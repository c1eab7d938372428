package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	name string
	log  *callLog
}

func (o *recordingObserver) Ping() {
	o.log.add(o.name)
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func TestAddObserverTwicePanics(t *testing.T) {
	h := New()
	defer h.Close()

	o := &recordingObserver{name: "a", log: &callLog{}}
	h.AddObserver(o)
	assert.Panics(t, func() { h.AddObserver(o) })
	assert.Equal(t, 1, h.NumObservers())
}

func TestRemoveObserverTwicePanics(t *testing.T) {
	h := New()
	defer h.Close()

	o := &recordingObserver{name: "a", log: &callLog{}}
	h.AddObserver(o)
	h.RemoveObserver(o)
	assert.Panics(t, func() { h.RemoveObserver(o) })
	assert.Panics(t, func() { h.RemoveObserver(&recordingObserver{}) })
}

func TestNotificationOrderFollowsRegistration(t *testing.T) {
	h := New()
	defer h.Close()

	calls := &callLog{}
	a := &recordingObserver{name: "a", log: calls}
	b := &recordingObserver{name: "b", log: calls}
	c := &recordingObserver{name: "c", log: calls}
	d := &recordingObserver{name: "d", log: calls}
	h.AddObserver(a)
	h.AddObserver(b)
	h.AddObserver(c)
	h.AddObserver(d)

	h.NotifyObservers()
	h.NotifyObservers()
	h.Sync()
	assert.Equal(t, []string{"a", "b", "c", "d", "a", "b", "c", "d"}, calls.get())

	h.RemoveObserver(b)
	h.NotifyObservers()
	h.Sync()
	assert.Equal(t, []string{"a", "c", "d"}, calls.get()[8:])
}

type blockingObserver struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	count int
}

func (o *blockingObserver) Ping() {
	o.mu.Lock()
	o.count++
	first := o.count == 1
	o.mu.Unlock()
	if first {
		close(o.entered)
		<-o.release
	}
}

func TestNotifyNeverBlocksAndDropsWhenFull(t *testing.T) {
	h := New()
	defer h.Close()

	o := &blockingObserver{entered: make(chan struct{}), release: make(chan struct{})}
	h.AddObserver(o)

	h.NotifyObservers()
	<-o.entered

	// The worker is stuck in the first delivery; these fill the queue and the
	// extras are dropped without blocking us.
	for i := 0; i < eventQueueSize+5; i++ {
		h.NotifyObservers()
	}
	close(o.release)
	h.Sync()

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, 1+eventQueueSize, o.count)
}

func TestEventsDoNotOverlap(t *testing.T) {
	h := New()
	defer h.Close()

	var active, maxActive int
	var mu sync.Mutex
	o := observerFunc(func() {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		mu.Lock()
		active--
		mu.Unlock()
	})
	h.AddObserver(o)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.NotifyObservers()
		}()
	}
	wg.Wait()
	h.Sync()

	require.Equal(t, 1, maxActive)
}

type pingCounter struct {
	f func()
}

func (p *pingCounter) Ping() { p.f() }

func observerFunc(f func()) Observer {
	return &pingCounter{f: f}
}

func TestNotifyAfterCloseIsDiscarded(t *testing.T) {
	h := New()
	calls := &callLog{}
	h.AddObserver(&recordingObserver{name: "a", log: calls})
	h.Close()

	h.NotifyObservers()
	h.Sync()
	assert.Empty(t, calls.get())
}

// Observers take state locks while dispatch holds the registry lock; that
// must stay deadlock free against writers and registry changes.
func TestObserversMayWriteStateDuringDispatch(t *testing.T) {
	h := New()
	defer h.Close()
	h.AddObserver(observerFunc(func() {
		p := h.Pose()
		p.X++
		h.SetPose(p)
		h.SetReflectance(h.Reflectance() + 1)
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h.SetTheta(float64(i % 360))
				h.SetDistance(Front, i%NoReading)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				o := observerFunc(func() {})
				h.AddObserver(o)
				h.NotifyObservers()
				h.RemoveObserver(o)
			}
		}()
		wg.Wait()
		h.NotifyObservers()
		h.Sync()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch deadlocked")
	}
	assert.Positive(t, h.Pose().X)
	assert.Positive(t, h.Reflectance())
}
