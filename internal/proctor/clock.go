package proctor

import (
	"sync"
	"time"
)

// Clock is the session countdown. It owns the tick source subscription and
// the frozen flag; the remaining-time counter itself lives in the session and
// is only changed by the controller's transition function.
type Clock struct {
	source  TickSource
	stop    func()
	running bool
	frozen  bool
}

func newClock(source TickSource) *Clock {
	return &Clock{source: source}
}

func (c *Clock) start(onTick func()) {
	if c.running {
		return
	}
	c.running = true
	c.frozen = false
	c.stop = c.source.Start(onTick)
}

// counting reports whether a tick should decrement the remaining time.
func (c *Clock) counting() bool {
	return c.running && !c.frozen
}

func (c *Clock) pause()  { c.frozen = true }
func (c *Clock) resume() { c.frozen = false }

// halt stops the tick source for good.
func (c *Clock) halt() {
	c.running = false
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

// Ticker is the wall-clock TickSource.
type Ticker struct {
	Interval time.Duration
}

// Start begins ticking on a new goroutine.
func (t Ticker) Start(tick func()) func() {
	interval := t.Interval
	if interval <= 0 {
		interval = time.Second
	}
	tk := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer tk.Stop()
		for {
			select {
			case <-done:
				return
			case <-tk.C:
				select {
				case <-done:
					return
				default:
				}
				tick()
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// ManualTicks is a TickSource driven by Advance. Used for deterministic time.
type ManualTicks struct {
	mu   sync.Mutex
	tick func()
}

// Start records tick until the returned stop is called.
func (m *ManualTicks) Start(tick func()) func() {
	m.mu.Lock()
	m.tick = tick
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.tick = nil
		m.mu.Unlock()
	}
}

// Advance delivers n ticks synchronously. Ticks after stop are dropped.
func (m *ManualTicks) Advance(n int) {
	for i := 0; i < n; i++ {
		m.mu.Lock()
		tick := m.tick
		m.mu.Unlock()
		if tick == nil {
			return
		}
		tick()
	}
}

// Active reports whether a subscriber is attached.
func (m *ManualTicks) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick != nil
}
