package util

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// ReentrantLock is a mutex the owning goroutine may acquire repeatedly.
// Every Lock must be paired with an Unlock from the same goroutine.
//
// owner is only ever set to the caller's goroutine id by the caller itself,
// so a goroutine that reads its own id back holds mu.
type ReentrantLock struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth atomic.Int32
}

func NewReentrantLock() *ReentrantLock {
	return &ReentrantLock{}
}

func (lock *ReentrantLock) Lock() {
	gid := goid.Get()
	if lock.owner.Load() == gid {
		lock.depth.Add(1)
		return
	}
	lock.mu.Lock()
	lock.own(gid)
}

// TryLock acquires the lock if it is free or already held by the caller.
func (lock *ReentrantLock) TryLock() bool {
	gid := goid.Get()
	if lock.owner.Load() == gid {
		lock.depth.Add(1)
		return true
	}
	if !lock.mu.TryLock() {
		return false
	}
	lock.own(gid)
	return true
}

func (lock *ReentrantLock) own(gid int64) {
	lock.owner.Store(gid)
	lock.depth.Store(1)
}

func (lock *ReentrantLock) Unlock() {
	if lock.owner.Load() != goid.Get() || lock.depth.Load() == 0 {
		panic("unlock of unlocked reentrant lock")
	}
	if lock.depth.Add(-1) == 0 {
		lock.owner.Store(0)
		lock.mu.Unlock()
	}
}

// HeldByCurrent reports whether the calling goroutine owns the lock.
func (lock *ReentrantLock) HeldByCurrent() bool {
	return lock.owner.Load() == goid.Get()
}

// Depth is the number of unreleased Lock calls of the owner.
func (lock *ReentrantLock) Depth() int {
	return int(lock.depth.Load())
}

var _ sync.Locker = (*ReentrantLock)(nil)
