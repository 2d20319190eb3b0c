// SPDX-License-Identifier: MPL-2.0

package cache

import "sync"

type (
	// Flights tracks downloads in progress, keyed by cache path. At most one
	// download per key runs at a time; later requests for the same key attach
	// to it. Each Cache owns one unless a shared table is injected.
	Flights struct {
		mu      sync.Mutex
		flights map[string]*flight
	}

	// flight is one in-progress download and the observers attached to it.
	flight struct {
		mu     sync.Mutex
		subs   map[int]func(Event)
		nextID int

		done chan struct{}
		err  error
	}
)

// NewFlights returns an empty in-flight table.
func NewFlights() *Flights {
	return &Flights{flights: make(map[string]*flight)}
}

// join returns the flight for key, creating it when none is running. leader
// is true for the caller that created it and must run the download.
func (f *Flights) join(key string) (fl *flight, leader bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.flights[key]; ok {
		return existing, false
	}
	fl = &flight{
		subs: make(map[int]func(Event)),
		done: make(chan struct{}),
	}
	f.flights[key] = fl
	return fl, true
}

// land removes the flight for key and releases its waiters with err.
func (f *Flights) land(key string, fl *flight, err error) {
	f.mu.Lock()
	if f.flights[key] == fl {
		delete(f.flights, key)
	}
	f.mu.Unlock()

	fl.err = err
	close(fl.done)
}

// Len returns the number of downloads in progress.
func (f *Flights) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flights)
}

// subscribe attaches fn to future events of the flight. Events already
// published are not replayed. The returned func detaches fn.
func (fl *flight) subscribe(fn func(Event)) (unsubscribe func()) {
	fl.mu.Lock()
	id := fl.nextID
	fl.nextID++
	fl.subs[id] = fn
	fl.mu.Unlock()

	return func() {
		fl.mu.Lock()
		delete(fl.subs, id)
		fl.mu.Unlock()
	}
}

// publish delivers ev to every attached observer in subscription order.
func (fl *flight) publish(ev Event) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	for id := range fl.nextID {
		if fn, ok := fl.subs[id]; ok {
			fn(ev)
		}
	}
}
