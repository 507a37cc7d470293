package distlock

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Extender is implemented by locks whose ownership expires unless renewed.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
	TTL() time.Duration
}

const minRenewInterval = 10 * time.Millisecond

// Lease keeps a held lock alive in the background while a step runs.
type Lease struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	lost   atomic.Bool
}

// KeepAlive renews lock every third of its TTL until Stop is called. Locks
// that never expire get a lease that cannot be lost. The lease context is
// canceled as soon as ownership is lost.
func KeepAlive(ctx context.Context, lock DistLock) *Lease {
	lctx, cancel := context.WithCancel(ctx)
	l := &Lease{ctx: lctx, cancel: cancel, done: make(chan struct{})}

	ext, ok := lock.(Extender)
	if !ok || ext.TTL() <= 0 {
		close(l.done)
		return l
	}
	go l.renew(ext)
	return l
}

func (l *Lease) renew(ext Extender) {
	defer close(l.done)

	ttl := ext.TTL()
	interval := ttl / 3
	if interval < minRenewInterval {
		interval = minRenewInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastOK := time.Now()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
		}

		err := ext.Extend(l.ctx, ttl)
		switch {
		case err == nil:
			lastOK = time.Now()
		case errors.Is(err, ErrNotHeld):
			l.markLost()
			return
		case l.ctx.Err() != nil:
			return
		case time.Since(lastOK) >= ttl:
			// Redis unreachable for a full TTL: assume the key expired.
			l.markLost()
			return
		}
	}
}

func (l *Lease) markLost() {
	l.lost.Store(true)
	l.cancel()
}

// Context is canceled when the lease is lost or stopped.
func (l *Lease) Context() context.Context { return l.ctx }

// Lost reports whether the lock was taken over or expired.
func (l *Lease) Lost() bool { return l.lost.Load() }

// Stop ends renewal and reports whether the lock was held throughout.
func (l *Lease) Stop() bool {
	l.cancel()
	<-l.done
	return !l.lost.Load()
}
