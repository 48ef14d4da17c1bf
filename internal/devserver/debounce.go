package devserver

import (
	"sync"
	"time"
)

// debouncer calls fire once a quiet window has passed since the last trigger.
type debouncer struct {
	mu      sync.Mutex
	wait    time.Duration
	timer   *time.Timer
	fire    func(trigger string)
	stopped bool
}

func newDebouncer(wait time.Duration, fire func(string)) *debouncer {
	return &debouncer{wait: wait, fire: fire}
}

func (d *debouncer) trigger(label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.wait <= 0 {
		d.fire(label)
		return
	}
	d.timer = time.AfterFunc(d.wait, func() { d.fire(label) })
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
