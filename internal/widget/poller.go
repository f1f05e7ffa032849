package widget

import (
	"context"
	"sync"
	"time"
)

// Ticker is the subset of *time.Ticker the poller needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func newStdTicker(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }

// poller runs tick on a fixed interval. At most one ticker is live: Start
// on a running poller is a no-op. Stop halts the ticker but a tick already
// executing runs to completion.
type poller struct {
	interval  time.Duration
	newTicker TickerFunc
	tick      func(ctx context.Context)

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func newPoller(interval time.Duration, newTicker TickerFunc, tick func(ctx context.Context)) *poller {
	return &poller{interval: interval, newTicker: newTicker, tick: tick}
}

// Start begins ticking and reports whether a new ticker was created.
func (p *poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return false
	}

	stop := make(chan struct{})
	p.stop = stop
	t := p.newTicker(p.interval)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.C():
				// A fire queued during a slow tick must not outlive Stop.
				select {
				case <-stop:
					return
				default:
				}
				p.tick(ctx)
			}
		}
	}()
	return true
}

// Stop halts the ticker. It does not wait for an in-flight tick.
func (p *poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)
	p.stop = nil
}

// Running reports whether a ticker is live.
func (p *poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

// Wait blocks until every loop started so far has exited.
func (p *poller) Wait() {
	p.wg.Wait()
}
