package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull means a queue received more jobs than it was sized for.
	ErrQueueFull = errors.New("queue is full")
	// ErrStopped is returned by a blocking Put interrupted by the stop signal.
	ErrStopped = errors.New("run stopped")
)

// Queue is a hand-off queue of jobs. Taking a job transfers its ownership to
// the caller.
//
// A bounded queue additionally counts slots: a slot is acquired by Put and
// held until Release, across any number of Take/Return cycles. The number of
// queued jobs therefore never exceeds the limit and Return never blocks.
type Queue struct {
	name  string
	items chan *Job
	slots chan struct{}
}

// NewQueue returns an unbounded hand-off queue sized for capacity jobs.
func NewQueue(name string, capacity int) *Queue {
	return &Queue{
		name:  name,
		items: make(chan *Job, max(capacity, 1)),
	}
}

// NewBoundedQueue returns a queue owning at most limit jobs at any time.
func NewBoundedQueue(name string, limit int) *Queue {
	limit = max(limit, 1)
	return &Queue{
		name:  name,
		items: make(chan *Job, limit),
		slots: make(chan struct{}, limit),
	}
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) Len() int {
	return len(q.items)
}

// Limit returns the maximum number of jobs the queue may hold.
func (q *Queue) Limit() int {
	return cap(q.items)
}

// Push appends a job without waiting. It is used for unbounded queues, which
// are sized for every job of the run.
func (q *Queue) Push(job *Job) error {
	select {
	case q.items <- job:
		return nil
	default:
		return fmt.Errorf("%w: %s rejected job %s", ErrQueueFull, q.name, job.Key)
	}
}

// Put waits for a free slot, then enqueues job. It returns ErrStopped when
// stop is closed first, or the context error.
func (q *Queue) Put(ctx context.Context, stop <-chan struct{}, job *Job) error {
	if q.slots == nil {
		return q.Push(job)
	}
	select {
	case q.slots <- struct{}{}:
	case <-stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return q.Push(job)
}

// Return re-enqueues a job taken from this queue. The caller keeps the slot.
func (q *Queue) Return(job *Job) error {
	return q.Push(job)
}

// Release frees the slot of a job leaving the bounded queue for good.
func (q *Queue) Release() {
	if q.slots == nil {
		return
	}
	select {
	case <-q.slots:
	default:
	}
}

// Take waits at most wait for a job. The boolean is false when none arrived.
func (q *Queue) Take(ctx context.Context, wait time.Duration) (*Job, bool) {
	select {
	case job := <-q.items:
		return job, true
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case job := <-q.items:
		return job, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Drain removes every queued job without waiting. Slots of a bounded queue
// are released.
func (q *Queue) Drain() []*Job {
	jobs := make([]*Job, 0, q.Len())
	for {
		select {
		case job := <-q.items:
			q.Release()
			jobs = append(jobs, job)
		default:
			return jobs
		}
	}
}
