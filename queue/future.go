package queue

import (
	"context"
	"errors"
)

// ErrPending is returned by Future.Result before the exchange resolved.
var ErrPending = errors.New("request is still pending")

// Future is the caller's handle on one submitted request. It resolves exactly
// once, with either a response or an error.
type Future[Resp any] struct {
	id   string
	done chan struct{}
	resp Resp
	err  error
}

func newFuture[Resp any](id string) *Future[Resp] {
	return &Future[Resp]{id: id, done: make(chan struct{})}
}

// ID returns the client-side correlation id. It never goes over the wire.
func (f *Future[Resp]) ID() string {
	return f.id
}

// Done is closed once the future resolved.
func (f *Future[Resp]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is done. Giving up on the
// wait does not withdraw the request: it keeps its place in the queue and
// its response is still consumed when it arrives.
func (f *Future[Resp]) Wait(ctx context.Context) (Resp, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		var zero Resp
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (f *Future[Resp]) Result() (Resp, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	default:
		var zero Resp
		return zero, ErrPending
	}
}

// resolve must be called exactly once, by the queue.
func (f *Future[Resp]) resolve(resp Resp, err error) {
	f.resp = resp
	f.err = err
	close(f.done)
}
