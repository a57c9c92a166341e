package adapter

import (
	"context"
	"sync"
	"time"
)

// signal is one way a send can settle.
type signal struct {
	source string // callback, return, throw, timeout, cancel
	value  any
	err    error
}

// settleOnce accepts the first signal and ignores the rest.
type settleOnce struct {
	mu      sync.Mutex
	settled bool
	ignored int
	ch      chan signal
}

func newSettleOnce() *settleOnce {
	return &settleOnce{ch: make(chan signal, 1)}
}

// resolve offers s. It reports whether s won.
func (o *settleOnce) resolve(s signal) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.settled {
		o.ignored++
		return false
	}
	o.settled = true
	o.ch <- s
	return true
}

// wait returns the winning signal. Timeout and cancellation compete like
// any other signal, so a late callback after expiry is ignored.
func (o *settleOnce) wait(ctx context.Context, timeout time.Duration) signal {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-o.ch:
		return s
	case <-timer.C:
		o.resolve(signal{source: "timeout"})
	case <-ctx.Done():
		o.resolve(signal{source: "cancel", err: ctx.Err()})
	}
	return <-o.ch
}

func (o *settleOnce) ignoredSignals() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ignored
}
