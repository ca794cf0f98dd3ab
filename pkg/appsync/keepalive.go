package appsync

import (
	"sync"
	"time"
)

// watchdog cancels the connection when no keep-alive arrives within the
// interval announced by connection_ack.
type watchdog struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	stopped  bool
	onExpire func()
}

func newWatchdog(onExpire func()) *watchdog {
	return &watchdog{onExpire: onExpire}
}

// arm sets the interval and starts the deadline.
func (w *watchdog) arm(interval time.Duration) error {
	w.mu.Lock()
	w.interval = interval
	w.mu.Unlock()
	return w.reset()
}

// reset pushes the deadline to now + interval. It fails with
// ErrNoKeepAliveInterval before arm.
func (w *watchdog) reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	if w.interval <= 0 {
		return ErrNoKeepAliveInterval
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.interval, w.onExpire)
	} else {
		w.timer.Reset(w.interval)
	}
	return nil
}

// stop disarms the watchdog permanently.
func (w *watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *watchdog) currentInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interval
}
