package capture

import (
	"sync"
	"time"
)

// periodic runs fn on a fixed cadence until cancelled or until fn returns
// false. fn must not block on anything that cancel's caller may hold.
type periodic struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startPeriodic(interval time.Duration, fn func() bool) *periodic {
	p := &periodic{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				// A tick may already be pending when stop closes
				select {
				case <-p.stop:
					return
				default:
				}
				if !fn() {
					return
				}
			}
		}
	}()

	return p
}

// cancel stops the task and returns once fn can no longer run.
func (p *periodic) cancel() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}
