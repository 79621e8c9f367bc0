package hardware

import (
	"context"
	"time"

	apperrors "github.com/wfunc/serialcfg/internal/errors"
)

type callResult[T any] struct {
	val T
	err error
}

// callWithTimeout 在限定时间内执行阻塞的串口调用
//
// 超时或ctx取消后fn仍在后台运行，其迟到的结果交给late处理（如关闭迟到打开的串口）。
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, op string, fn func() (T, error), late func(T)) (T, error) {
	resCh := make(chan callResult[T], 1)
	go func() {
		v, err := fn()
		resCh <- callResult[T]{val: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	abandon := func() {
		if late == nil {
			return
		}
		go func() {
			if r := <-resCh; r.err == nil {
				late(r.val)
			}
		}()
	}

	select {
	case r := <-resCh:
		return r.val, r.err
	case <-timer.C:
		abandon()
		return zero, apperrors.Newf(apperrors.ErrSerialTimeout, "%s timed out after %s", op, timeout)
	case <-ctx.Done():
		abandon()
		return zero, apperrors.Wrapf(ctx.Err(), apperrors.ErrCanceled, "%s canceled", op)
	}
}
