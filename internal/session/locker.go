package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when a session lock could not be acquired.
var ErrBusy = errors.New("session is busy")

type BusyMode string

const (
	// BusyReject fails a contended acquire immediately.
	BusyReject BusyMode = "reject"
	// BusyQueue waits for the holder up to the queue timeout.
	BusyQueue BusyMode = "queue"
)

func ParseBusyMode(raw string) (BusyMode, error) {
	switch BusyMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", BusyReject:
		return BusyReject, nil
	case BusyQueue:
		return BusyQueue, nil
	default:
		return "", fmt.Errorf("unsupported busy mode %q", raw)
	}
}

// Locker serializes operations per session id within one process.
type Locker struct {
	mode         BusyMode
	queueTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewLocker(mode BusyMode, queueTimeout time.Duration) *Locker {
	if mode == "" {
		mode = BusyReject
	}
	if queueTimeout <= 0 {
		queueTimeout = 10 * time.Second
	}
	return &Locker{
		mode:         mode,
		queueTimeout: queueTimeout,
		locks:        make(map[string]*keyLock),
	}
}

// Acquire takes the lock for sessionID. The returned release func is safe to call
// more than once.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	lock := l.ref(sessionID)

	var err error
	switch l.mode {
	case BusyQueue:
		waitCtx, cancel := context.WithTimeout(ctx, l.queueTimeout)
		err = lock.sem.Acquire(waitCtx, 1)
		cancel()
	default:
		if !lock.sem.TryAcquire(1) {
			err = ErrBusy
		}
	}
	if err != nil {
		l.unref(sessionID, lock)
		if errors.Is(err, ErrBusy) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.sem.Release(1)
			l.unref(sessionID, lock)
		})
	}, nil
}

// Held reports how many session ids currently have a holder or waiter.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *Locker) ref(sessionID string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &keyLock{sem: semaphore.NewWeighted(1)}
		l.locks[sessionID] = lock
	}
	lock.refs++
	return lock
}

func (l *Locker) unref(sessionID string, lock *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs <= 0 {
		delete(l.locks, sessionID)
	}
}
