package models

import (
	"sync"
)

// UserLocks serializes work per user. Trades for different users run in
// parallel; two trades for the same user never overlap.
type UserLocks struct {
	mu    sync.Mutex // protects locks
	locks map[int64]*userLock
}

type userLock struct {
	mu      sync.Mutex
	waiters int // holders plus goroutines waiting, guarded by UserLocks.mu
}

// NewUserLocks creates an empty lock set.
func NewUserLocks() *UserLocks {
	return &UserLocks{
		locks: make(map[int64]*userLock),
	}
}

// Lock blocks until the caller holds the lock for userID.
func (ul *UserLocks) Lock(userID int64) {
	ul.mu.Lock()
	l := ul.locks[userID]
	if l == nil {
		l = &userLock{}
		ul.locks[userID] = l
	}
	l.waiters++
	ul.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the lock for userID. Entries nobody waits on are dropped
// so the map does not grow with every user ever seen.
func (ul *UserLocks) Unlock(userID int64) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	l := ul.locks[userID]
	if l == nil {
		return
	}
	l.waiters--
	if l.waiters == 0 {
		delete(ul.locks, userID)
	}
	l.mu.Unlock()
}

// Len is the number of users currently locked or waiting.
func (ul *UserLocks) Len() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.locks)
}
