package userlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when the user's slot could not be taken in time
var ErrBusy = errors.New("user is busy")

// Arena serializes work per user id. Different users never block each other.
type Arena struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

// New creates an empty arena
func New() *Arena {
	return &Arena{slots: make(map[int64]*slot)}
}

// Acquire takes the user's slot, waiting at most timeout (no limit when
// timeout is zero). The returned release func must be called exactly once;
// extra calls are ignored.
func (a *Arena) Acquire(ctx context.Context, userID int64, timeout time.Duration) (func(), error) {
	s := a.ref(userID)

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		a.unref(userID, s)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.sem.Release(1)
			a.unref(userID, s)
		})
	}, nil
}

// Len returns the number of users currently holding or waiting for a slot
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}

func (a *Arena) ref(userID int64) *slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[userID]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		a.slots[userID] = s
	}
	s.refs++
	return s
}

func (a *Arena) unref(userID int64, s *slot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(a.slots, userID)
	}
}
