// Package threadlock serializes turns on the same assistant thread.
package threadlock

import (
	"context"
	"errors"
)

// ErrBusy is returned when the lock could not be taken before ctx ended.
var ErrBusy = errors.New("thread is busy with another turn")

// Locker hands out one holder per key at a time. unlock is idempotent.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func busy(ctx context.Context) error {
	return errors.Join(ErrBusy, context.Cause(ctx))
}
