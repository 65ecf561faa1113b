// pool_observer.go periodically folds buffer pool statistics into the
// collector's gauges.
package metrics

import (
	"sync"
	"time"

	"github.com/dkhalov/tlswire/pkg/pool"
)

// PoolObserver samples a BufferPool's statistics on an interval and
// publishes them as collector gauges.
type PoolObserver struct {
	collector *Collector
	pool      *pool.BufferPool
	interval  time.Duration

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPoolObserver creates an observer sampling p every interval (default
// 10 seconds when zero).
func NewPoolObserver(c *Collector, p *pool.BufferPool, interval time.Duration) *PoolObserver {
	if c == nil {
		c = Global()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &PoolObserver{
		collector: c,
		pool:      p,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins sampling in a background goroutine. Not safe to call
// concurrently with Stop.
func (o *PoolObserver) Start() {
	o.started = true
	go func() {
		defer close(o.done)
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.Sample()
			case <-o.stop:
				return
			}
		}
	}()
}

// Sample publishes one stats snapshot immediately.
func (o *PoolObserver) Sample() {
	o.collector.ObservePool(o.pool.Stats())
}

// Stop halts sampling and waits for the background goroutine.
func (o *PoolObserver) Stop() {
	o.stopOnce.Do(func() {
		close(o.stop)
		if o.started {
			<-o.done
		}
	})
}
