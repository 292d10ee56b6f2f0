// Package lock provides advisory locks that serialize allocation for one
// (branch, vehicle category) pair across requests and instances.
package lock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"charterops/internal/domain"
)

// Locker acquires a named exclusive lock. The returned release func is
// safe to call once; it never fails the caller.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// DefaultWait bounds how long Acquire blocks before reporting a conflict.
const DefaultWait = 5 * time.Second

// Key names the allocation lock for a branch/category pair.
func Key(branchID, categoryID int64) string {
	return fmt.Sprintf("alloc:%d:%d", branchID, categoryID)
}

// AcquireAll takes every key in sorted order so concurrent callers cannot
// deadlock, and returns one func releasing them in reverse.
func AcquireAll(ctx context.Context, l Locker, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	var last string
	for i, k := range sorted {
		if i > 0 && k == last {
			continue
		}
		last = k
		release, err := l.Acquire(ctx, k)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func busy(key string, err error) error {
	return domain.ConflictError{Resource: "allocation_lock", Msg: key + " is busy, retry", Err: err}
}

func withWait(ctx context.Context, wait time.Duration) (context.Context, context.CancelFunc) {
	if wait <= 0 {
		wait = DefaultWait
	}
	return context.WithTimeout(ctx, wait)
}
