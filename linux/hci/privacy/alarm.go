package privacy

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rigado/blehci/linux/hci/handler"
)

// alarm is a one-shot timer whose callback runs on a handler. Every method must be called
// from that handler. A firing that raced with Cancel or a later Schedule is dropped.
type alarm struct {
	clock clock.Clock
	h     *handler.Handler

	timer    *clock.Timer
	gen      uint64
	armed    bool
	deadline time.Time
}

func newAlarm(c clock.Clock, h *handler.Handler) *alarm {
	return &alarm{clock: c, h: h}
}

// Schedule replaces any pending firing with fn after d.
func (a *alarm) Schedule(d time.Duration, fn func()) {
	a.stop()

	a.gen++
	gen := a.gen
	a.armed = true
	a.deadline = a.clock.Now().Add(d)
	a.timer = a.clock.AfterFunc(d, func() {
		a.h.Post(func() {
			if gen != a.gen || !a.armed {
				return
			}
			a.armed = false
			fn()
		})
	})
}

func (a *alarm) Cancel() {
	a.stop()
	a.gen++
	a.armed = false
}

// Armed reports whether a firing is pending and when it is due.
func (a *alarm) Armed() (time.Time, bool) {
	return a.deadline, a.armed
}

func (a *alarm) stop() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
