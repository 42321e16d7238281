package binned

import (
	"runtime"
	"sync/atomic"
)

// spinLock is the class's grow lock: a single CAS'd flag with a
// sched_yield-style backoff between attempts, as the design calls for. It
// also doubles as the lock guarding free-list push/pop, since grow already
// serializes there and the contention window on a push/pop is small.
type spinLock struct {
	state atomic.Uint32
}

// tryAcquire attempts a single non-blocking CAS 0→1. Used by grow: a loser
// here means another thread is already growing, and the design treats that
// as a successful outcome rather than retrying.
func (l *spinLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// acquire spins until the lock is taken. Used by free-list push/pop, which
// must complete rather than bail out on contention.
func (l *spinLock) acquire() {
	for !l.tryAcquire() {
		runtime.Gosched()
	}
}

func (l *spinLock) release() {
	l.state.Store(0)
}
