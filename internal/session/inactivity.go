// internal/session/inactivity.go
package session

import (
	"sync"
	"time"
)

// DefaultInactivityTimeout is how long a session may sit idle.
const DefaultInactivityTimeout = 30 * time.Minute

// InactivityTimer fires onExpire once no Touch has happened for timeout.
// There is exactly one underlying timer; Touch restarts it.
type InactivityTimer struct {
	mu       sync.Mutex
	timeout  time.Duration
	onExpire func()
	timer    *time.Timer
	gen      uint64
}

func NewInactivityTimer(timeout time.Duration, onExpire func()) *InactivityTimer {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &InactivityTimer{timeout: timeout, onExpire: onExpire}
}

// Start arms the timer. Calling Start on a running timer restarts it.
func (t *InactivityTimer) Start() {
	t.Touch()
}

// Touch records activity.
func (t *InactivityTimer) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.timeout, func() { t.fire(gen) })
}

// Stop disarms the timer without firing.
func (t *InactivityTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *InactivityTimer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		// superseded by a later Touch or Stop
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()
	t.onExpire()
}

// Guard ties a timer to a store: the timer runs while the store is
// authenticated and its expiry logs the store out.
func Guard(store *Store, timeout time.Duration, logout func()) (*InactivityTimer, func()) {
	timer := NewInactivityTimer(timeout, logout)
	if store.IsAuthenticated() {
		timer.Start()
	}
	unsubscribe := store.Subscribe(func(st State) {
		if st.Authenticated {
			timer.Start()
		} else {
			timer.Stop()
		}
	})
	return timer, func() {
		unsubscribe()
		timer.Stop()
	}
}
