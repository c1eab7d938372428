package hub

import "fmt"

// AddObserver registers o for crossing notifications.  Registering the same
// observer twice is a lifecycle bug and panics.
func (h *Hub) AddObserver(o Observer) {
	h.observerLock.Lock()
	defer h.observerLock.Unlock()
	for _, existing := range h.observers {
		if existing == o {
			panic(fmt.Sprintf("hub: observer %T already registered", o))
		}
	}
	h.observers = append(h.observers, o)
}

// RemoveObserver unregisters o.  Removing an observer that isn't registered
// panics.
func (h *Hub) RemoveObserver(o Observer) {
	h.observerLock.Lock()
	defer h.observerLock.Unlock()
	for i, existing := range h.observers {
		if existing == o {
			h.observers = append(h.observers[:i:i], h.observers[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("hub: observer %T is not registered", o))
}

// NumObservers returns the number of registered observers.
func (h *Hub) NumObservers() int {
	h.observerLock.Lock()
	defer h.observerLock.Unlock()
	return len(h.observers)
}

// NotifyObservers queues a grid line crossing for delivery to every registered
// observer.  It never blocks the caller; if the dispatch queue is full the
// crossing is dropped.
func (h *Hub) NotifyObservers() {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.events <- event{}:
	default:
		h.log.Warn("Crossing dropped, dispatch queue full")
	}
}

// Sync blocks until every crossing queued before the call has been delivered.
func (h *Hub) Sync() {
	flushed := make(chan struct{})
	select {
	case h.events <- event{flushed: flushed}:
	case <-h.done:
		return
	}
	select {
	case <-flushed:
	case <-h.done:
	}
}

func (h *Hub) dispatchLoop() {
	for {
		select {
		case <-h.done:
			return
		case e := <-h.events:
			if e.flushed != nil {
				close(e.flushed)
				continue
			}
			h.deliver()
		}
	}
}

// deliver pings every observer in registration order.  The registry lock is
// held for the whole event so a concurrent add/remove takes effect between
// events, never during one.
func (h *Hub) deliver() {
	h.observerLock.Lock()
	defer h.observerLock.Unlock()
	for _, o := range h.observers {
		o.Ping()
	}
}
