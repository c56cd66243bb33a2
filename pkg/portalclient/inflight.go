// pkg/portalclient/inflight.go
package portalclient

import (
	"errors"
	"sync"
)

// ErrActionInFlight is returned while an identical action is still waiting
// for the server.
var ErrActionInFlight = errors.New("action already in flight")

// InFlight tracks submissions that have not returned yet. It is the
// programmatic version of a disabled submit button.
type InFlight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{keys: map[string]struct{}{}}
}

// Begin claims key. The returned func releases it and must be called once the
// request finishes, whatever the outcome.
func (f *InFlight) Begin(key string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.keys[key]; busy {
		return nil, ErrActionInFlight
	}
	f.keys[key] = struct{}{}
	return func() {
		f.mu.Lock()
		delete(f.keys, key)
		f.mu.Unlock()
	}, nil
}

func (f *InFlight) Busy(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, busy := f.keys[key]
	return busy
}
