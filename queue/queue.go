// Package queue serializes concurrent requests into a single-flight exchange
// with a line-oriented worker. Requests wait in FIFO order and at most one is
// outstanding at a time; responses carry no id, so the next response always
// belongs to the request in flight.
//
// The queue is unbounded.
package queue

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Submit once the queue was closed.
var ErrClosed = errors.New("request queue is closed")

// Exchange is one request and its pending result.
type Exchange[Req, Resp any] struct {
	ID          string
	Request     Req
	SubmittedAt time.Time
	SentAt      time.Time

	// sent is set under mu once transmission starts. Only a sent exchange
	// can be resolved.
	sent   bool
	future *Future[Resp]
}

// Event describes a queue transition for observers.
type Event struct {
	ID string
	// Queued is the number of requests waiting behind the in-flight one.
	Queued int
	// Elapsed is the time since submission.
	Elapsed time.Duration
	// Err is the outcome of a completed exchange.
	Err error
}

// Callbacks observe the queue. They run outside the queue lock and must not
// block. OnComplete receives the response and runs before the future resolves.
type Callbacks[Resp any] struct {
	OnSubmit   func(Event)
	OnTransmit func(Event)
	OnComplete func(Event, Resp)
}

// Queue is a FIFO of requests with at most one exchange in flight.
type Queue[Req, Resp any] struct {
	send      func(*Exchange[Req, Resp]) error
	callbacks Callbacks[Resp]
	log       *slog.Logger

	mu       sync.Mutex
	pending  []*Exchange[Req, Resp]
	inFlight *Exchange[Req, Resp]
	open     bool
	closed   bool

	// writeMu keeps transmissions in order without holding mu during I/O.
	writeMu sync.Mutex
}

// New returns a held queue. Nothing is transmitted until Open is called.
// send writes one request to the worker; an error fails that request only.
func New[Req, Resp any](send func(*Exchange[Req, Resp]) error, callbacks Callbacks[Resp], log *slog.Logger) *Queue[Req, Resp] {
	if log == nil {
		log = slog.Default()
	}
	return &Queue[Req, Resp]{
		send:      send,
		callbacks: callbacks,
		log:       log,
	}
}

// Submit enqueues req. It never waits for the worker.
func (q *Queue[Req, Resp]) Submit(req Req) (*Future[Resp], error) {
	ex := &Exchange[Req, Resp]{
		ID:          uuid.New().String(),
		Request:     req,
		SubmittedAt: time.Now(),
	}
	ex.future = newFuture[Resp](ex.ID)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	q.pending = append(q.pending, ex)
	queued := len(q.pending)
	next := q.promoteLocked()
	q.mu.Unlock()

	q.log.Debug("request queued", "exchangeID", ex.ID, "queued", queued)
	notify(q.callbacks.OnSubmit, Event{ID: ex.ID, Queued: queued})

	q.transmit(next)
	return ex.future, nil
}

// Open releases the queue and transmits the head request, if any.
func (q *Queue[Req, Resp]) Open() {
	q.mu.Lock()
	if q.open || q.closed {
		q.mu.Unlock()
		return
	}
	q.open = true
	next := q.promoteLocked()
	q.mu.Unlock()

	q.log.Debug("request queue opened")
	q.transmit(next)
}

// Resolve completes the in-flight exchange with resp and err, then transmits
// the next request. It reports false when nothing was in flight, which
// includes a head request whose transmission has not started yet.
func (q *Queue[Req, Resp]) Resolve(resp Resp, err error) bool {
	q.mu.Lock()
	ex := q.inFlight
	if ex == nil || !ex.sent {
		q.mu.Unlock()
		return false
	}
	q.inFlight = nil
	next := q.promoteLocked()
	queued := len(q.pending)
	q.mu.Unlock()

	q.complete(ex, resp, err, queued)
	q.transmit(next)
	return true
}

// Close fails the in-flight and every queued request with err (ErrClosed when
// err is nil). Later submissions fail with ErrClosed. Safe to call repeatedly.
func (q *Queue[Req, Resp]) Close(err error) {
	if err == nil {
		err = ErrClosed
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	var failed []*Exchange[Req, Resp]
	if q.inFlight != nil {
		failed = append(failed, q.inFlight)
		q.inFlight = nil
	}
	failed = append(failed, q.pending...)
	q.pending = nil
	q.mu.Unlock()

	q.log.Debug("request queue closed", "failed", len(failed), "error", err)

	var zero Resp
	for _, ex := range failed {
		q.complete(ex, zero, err, 0)
	}
}

// Len returns the number of requests waiting behind the in-flight one.
func (q *Queue[Req, Resp]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight reports whether an exchange is awaiting its response.
func (q *Queue[Req, Resp]) InFlight() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight != nil
}

// Closed reports whether Close was called.
func (q *Queue[Req, Resp]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// promoteLocked moves the head request in flight when the queue is open and
// idle. Caller must hold mu.
func (q *Queue[Req, Resp]) promoteLocked() *Exchange[Req, Resp] {
	if !q.open || q.closed || q.inFlight != nil || len(q.pending) == 0 {
		return nil
	}
	ex := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.inFlight = ex
	return ex
}

// transmit sends ex. A failed send resolves ex with the error and moves on
// to the next request.
func (q *Queue[Req, Resp]) transmit(ex *Exchange[Req, Resp]) {
	for ex != nil {
		q.writeMu.Lock()
		q.mu.Lock()
		if q.inFlight != ex {
			// Failed by Close while waiting for the writer.
			q.mu.Unlock()
			q.writeMu.Unlock()
			return
		}
		ex.sent = true
		ex.SentAt = time.Now()
		q.mu.Unlock()

		notify(q.callbacks.OnTransmit, Event{
			ID:      ex.ID,
			Queued:  q.Len(),
			Elapsed: ex.SentAt.Sub(ex.SubmittedAt),
		})
		err := q.send(ex)
		q.writeMu.Unlock()

		if err == nil {
			q.log.Debug("request sent", "exchangeID", ex.ID)
			return
		}

		q.log.Warn("failed to send request", "exchangeID", ex.ID, "error", err)
		ex = q.fail(ex, err)
	}
}

// fail resolves ex with err if it is still in flight and returns the next
// request to transmit.
func (q *Queue[Req, Resp]) fail(ex *Exchange[Req, Resp], err error) *Exchange[Req, Resp] {
	q.mu.Lock()
	if q.inFlight != ex {
		// Already failed by Close.
		q.mu.Unlock()
		return nil
	}
	q.inFlight = nil
	next := q.promoteLocked()
	queued := len(q.pending)
	q.mu.Unlock()

	var zero Resp
	q.complete(ex, zero, err, queued)
	return next
}

func (q *Queue[Req, Resp]) complete(ex *Exchange[Req, Resp], resp Resp, err error, queued int) {
	if q.callbacks.OnComplete != nil {
		q.callbacks.OnComplete(Event{
			ID:      ex.ID,
			Queued:  queued,
			Elapsed: time.Since(ex.SubmittedAt),
			Err:     err,
		}, resp)
	}
	ex.future.resolve(resp, err)
}

func notify(fn func(Event), ev Event) {
	if fn != nil {
		fn(ev)
	}
}
