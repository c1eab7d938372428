// Package hub is the single synchronised store shared by the robot's periodic
// loops: the pose estimate, the ultrasonic readings, the latest reflectance
// sample and the registry of grid line observers.
package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
)

// NoReading is the distance reported before a sensor has seen anything; it is
// the ultrasonic sensors' maximum range.
const NoReading = 255

// Crossing events queued beyond this are dropped.
const eventQueueSize = 16

// Pose is the robot's estimated position in cm and heading in degrees,
// counterclockwise from the +x axis, in [0, 360).
type Pose struct {
	X, Y  float64
	Theta float64
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f°)", p.X, p.Y, p.Theta)
}

// Direction selects one of the tracked ultrasonic readings.
type Direction int

const (
	Front Direction = iota
	Side

	numDirections
)

func (d Direction) String() string {
	switch d {
	case Front:
		return "front"
	case Side:
		return "side"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Observer is notified each time the floor sensor crosses a grid line.  Ping
// runs on the hub's dispatch goroutine with the registry lock held: it must
// return quickly and must not add or remove observers.  It may read and write
// the pose, distances and reflectance; those locks are always taken after the
// registry lock, never before it.
type Observer interface {
	Ping()
}

type event struct {
	// Non-nil for Sync markers rather than crossings.
	flushed chan struct{}
}

type Hub struct {
	rangeLock     sync.Mutex
	wallFollowing bool
	distances     [numDirections]int
	filtered      [numDirections]int

	poseLock sync.Mutex
	pose     Pose

	observerLock sync.Mutex
	observers    []Observer

	reflectanceLock sync.Mutex
	reflectance     int

	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	log *slog.Logger
}

// New creates a hub with the pose at the origin, facing +x, and starts its
// dispatch goroutine.
func New() *Hub {
	h := &Hub{
		events: make(chan event, eventQueueSize),
		done:   make(chan struct{}),
		log:    log.With("component", "hub"),
	}
	for d := range h.distances {
		h.distances[d] = NoReading
		h.filtered[d] = NoReading
	}
	go h.dispatchLoop()
	return h
}

// Close stops the dispatch goroutine.  Crossings notified afterwards are
// discarded.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) Pose() Pose {
	h.poseLock.Lock()
	defer h.poseLock.Unlock()
	return h.pose
}

func (h *Hub) SetPose(p Pose) {
	h.poseLock.Lock()
	defer h.poseLock.Unlock()
	h.pose = p
}

// CompareAndSetPose stores next only if the pose still equals expected.  It
// reports whether the write happened.
func (h *Hub) CompareAndSetPose(expected, next Pose) bool {
	h.poseLock.Lock()
	defer h.poseLock.Unlock()
	if h.pose != expected {
		return false
	}
	h.pose = next
	return true
}

func (h *Hub) SetX(x float64) {
	h.poseLock.Lock()
	defer h.poseLock.Unlock()
	h.pose.X = x
}

func (h *Hub) SetY(y float64) {
	h.poseLock.Lock()
	defer h.poseLock.Unlock()
	h.pose.Y = y
}

func (h *Hub) SetTheta(theta float64) {
	h.poseLock.Lock()
	defer h.poseLock.Unlock()
	h.pose.Theta = theta
}

func checkDirection(d Direction) {
	if d < 0 || d >= numDirections {
		panic(fmt.Sprintf("hub: unsupported direction %v", d))
	}
}

// Distance returns the last raw reading in cm for the given direction.
func (h *Hub) Distance(d Direction) int {
	checkDirection(d)
	h.rangeLock.Lock()
	defer h.rangeLock.Unlock()
	return h.distances[d]
}

func (h *Hub) SetDistance(d Direction, cm int) {
	checkDirection(d)
	h.rangeLock.Lock()
	defer h.rangeLock.Unlock()
	h.distances[d] = cm
}

// FilteredDistance returns the last windowed-minimum reading in cm.
func (h *Hub) FilteredDistance(d Direction) int {
	checkDirection(d)
	h.rangeLock.Lock()
	defer h.rangeLock.Unlock()
	return h.filtered[d]
}

func (h *Hub) SetFilteredDistance(d Direction, cm int) {
	checkDirection(d)
	h.rangeLock.Lock()
	defer h.rangeLock.Unlock()
	h.filtered[d] = cm
}

// SetDistances publishes a raw and filtered pair together.
func (h *Hub) SetDistances(d Direction, raw, filtered int) {
	checkDirection(d)
	h.rangeLock.Lock()
	defer h.rangeLock.Unlock()
	h.distances[d] = raw
	h.filtered[d] = filtered
}

func (h *Hub) WallFollowing() bool {
	h.rangeLock.Lock()
	defer h.rangeLock.Unlock()
	return h.wallFollowing
}

// SetWallFollowing enables or pauses sampling of the side sensors.
func (h *Hub) SetWallFollowing(enabled bool) {
	h.rangeLock.Lock()
	defer h.rangeLock.Unlock()
	h.wallFollowing = enabled
}

func (h *Hub) Reflectance() int {
	h.reflectanceLock.Lock()
	defer h.reflectanceLock.Unlock()
	return h.reflectance
}

func (h *Hub) SetReflectance(v int) {
	h.reflectanceLock.Lock()
	defer h.reflectanceLock.Unlock()
	h.reflectance = v
}
