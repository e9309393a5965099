package router

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type timerPair struct {
	warning *time.Timer
	expiry  *time.Timer
}

// Timers holds at most one warning/expiry timer pair per identity. Arming
// an identity that already has a pair cancels the old one first, so timers
// never stack.
type Timers struct {
	mu      sync.Mutex
	entries map[string]*timerPair

	window time.Duration
	lead   time.Duration

	onWarning func(identity string, remaining time.Duration)
	onExpiry  func(identity string)
}

// NewTimers creates the arena. The warning fires lead before the window
// ends; callbacks run on timer goroutines and must do their own locking.
func NewTimers(window, lead time.Duration, onWarning func(string, time.Duration), onExpiry func(string)) *Timers {
	return &Timers{
		entries:   make(map[string]*timerPair),
		window:    window,
		lead:      lead,
		onWarning: onWarning,
		onExpiry:  onExpiry,
	}
}

// Arm starts (or restarts) the handoff window for an identity.
func (t *Timers) Arm(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[identity]; ok {
		old.warning.Stop()
		old.expiry.Stop()
	}

	pair := &timerPair{}
	pair.warning = time.AfterFunc(t.window-t.lead, func() {
		t.onWarning(identity, t.lead)
	})
	pair.expiry = time.AfterFunc(t.window, func() {
		t.mu.Lock()
		delete(t.entries, identity)
		t.mu.Unlock()
		t.onExpiry(identity)
	})
	t.entries[identity] = pair

	log.Debug().Str("identity", identity).Dur("window", t.window).Msg("handoff window armed")
}

// Cancel stops both timers for an identity, if armed.
func (t *Timers) Cancel(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pair, ok := t.entries[identity]; ok {
		pair.warning.Stop()
		pair.expiry.Stop()
		delete(t.entries, identity)
	}
}

// Active reports whether the identity currently has an armed window.
func (t *Timers) Active(identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[identity]
	return ok
}

// Stop cancels every armed window.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pair := range t.entries {
		pair.warning.Stop()
		pair.expiry.Stop()
	}
	t.entries = make(map[string]*timerPair)
}
