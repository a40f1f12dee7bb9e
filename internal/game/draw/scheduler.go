package draw

import (
	"sync"
	"time"
)

// Scheduler invokes a tick callback once per interval on its own goroutine
// until the callback reports completion or Stop is called.
//
// Invariant: tick is never invoked concurrently with itself, and never again
// after it has returned false.
type Scheduler struct {
	interval time.Duration
	tick     func() bool
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// Start launches a scheduler. tick returns false to end the schedule.
//
// Precondition: interval > 0; tick must not be nil.
// Postcondition: The first tick happens one interval after Start.
func Start(interval time.Duration, tick func() bool) *Scheduler {
	if interval <= 0 {
		panic("draw.Start: interval must be > 0")
	}
	s := &Scheduler{
		interval: interval,
		tick:     tick,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if !s.fire() {
				return
			}
		}
	}
}

// fire runs one tick unless Stop won the race for it.
func (s *Scheduler) fire() bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	return s.tick()
}

// Stop ends the schedule. It is idempotent and safe to call from inside tick.
//
// Postcondition: tick will not be invoked again once Stop returns, except for
// a tick already in progress on another goroutine.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.quit) })
}

// Done is closed once the scheduler goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}
