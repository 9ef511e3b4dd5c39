package engine

import (
	"context"
	"sync"
)

// admission enforces the two concurrency budgets: a global slot count
// and a per-requester cap. Waiters are served in arrival order, except
// that a waiter whose requester is already at its cap is skipped in
// favor of the next eligible one.
type admission struct {
	mu      sync.Mutex
	global  int
	perReq  int
	active  int
	byReq   map[int64]int
	waiters []*waiter
}

type waiter struct {
	requester int64
	ready     chan struct{}
	granted   bool
}

func newAdmission(global, perReq int) *admission {
	if global < 1 {
		global = 1
	}
	if perReq < 1 {
		perReq = 1
	}
	return &admission{
		global: global,
		perReq: perReq,
		byReq:  make(map[int64]int),
	}
}

// ticket is a claim on a slot: either already granted or a place in
// the wait list. Arrival order is fixed at reserve time, not at wait
// time.
type ticket struct {
	a         *admission
	requester int64
	immediate bool
	w         *waiter
}

func (a *admission) reserve(requester int64) *ticket {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active < a.global && a.byReq[requester] < a.perReq {
		a.active++
		a.byReq[requester]++
		return &ticket{a: a, requester: requester, immediate: true}
	}
	w := &waiter{requester: requester, ready: make(chan struct{})}
	a.waiters = append(a.waiters, w)
	return &ticket{a: a, requester: requester, w: w}
}

// wait blocks until the ticket's slot is granted or ctx ends. A
// granted slot must be returned with release.
func (tk *ticket) wait(ctx context.Context) error {
	if tk.immediate {
		return nil
	}
	select {
	case <-tk.w.ready:
		return nil
	case <-ctx.Done():
		tk.a.mu.Lock()
		granted := tk.w.granted
		if !granted {
			tk.a.removeWaiter(tk.w)
		}
		tk.a.mu.Unlock()
		if granted {
			// The grant raced the cancellation; pass the slot on.
			tk.a.release(tk.requester)
		}
		return ctx.Err()
	}
}

// acquire is reserve and wait in one step.
func (a *admission) acquire(ctx context.Context, requester int64) error {
	return a.reserve(requester).wait(ctx)
}

func (a *admission) release(requester int64) {
	a.mu.Lock()
	a.active--
	if a.byReq[requester] <= 1 {
		delete(a.byReq, requester)
	} else {
		a.byReq[requester]--
	}
	a.promote()
	a.mu.Unlock()
}

// promote grants free slots to the oldest eligible waiters. Caller
// holds mu.
func (a *admission) promote() {
	for a.active < a.global {
		idx := -1
		for i, w := range a.waiters {
			if a.byReq[w.requester] < a.perReq {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		w := a.waiters[idx]
		a.waiters = append(a.waiters[:idx], a.waiters[idx+1:]...)
		a.active++
		a.byReq[w.requester]++
		w.granted = true
		close(w.ready)
	}
}

func (a *admission) removeWaiter(target *waiter) {
	for i, w := range a.waiters {
		if w == target {
			a.waiters = append(a.waiters[:i], a.waiters[i+1:]...)
			return
		}
	}
}

func (a *admission) stats() (active, waiting int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active, len(a.waiters)
}
