package state

import (
	"sync"
	"time"
)

// walletLocks hands out one mutex per wallet.
type walletLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newWalletLocks() *walletLocks {
	return &walletLocks{locks: make(map[string]*sync.Mutex)}
}

func (w *walletLocks) acquire(key string, timeout time.Duration) (UnlockFunc, error) {
	w.mu.Lock()
	lock, exists := w.locks[key]
	if !exists {
		lock = &sync.Mutex{}
		w.locks[key] = lock
	}
	w.mu.Unlock()

	if lock.TryLock() {
		return lock.Unlock, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if lock.TryLock() {
				return lock.Unlock, nil
			}
		case <-deadline.C:
			return nil, ErrStateLocked
		}
	}
}
