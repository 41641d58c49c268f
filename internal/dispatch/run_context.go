package dispatch

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	ReasonCompleted    = "all jobs retired"
	ReasonRunDeadline  = "run deadline reached"
	ReasonInterrupted  = "run interrupted"
	ReasonWorkerFailed = "run aborted after a worker failure"
)

// StopSignal is the cooperative cancellation flag shared by every worker.
// The first Raise wins; its reason is reported for jobs stopped afterwards.
type StopSignal struct {
	once   sync.Once
	raised atomic.Bool
	reason atomic.Value
	ch     chan struct{}
}

func NewStopSignal() *StopSignal {
	return &StopSignal{ch: make(chan struct{})}
}

func (s *StopSignal) Raise(reason string) {
	s.once.Do(func() {
		s.reason.Store(reason)
		s.raised.Store(true)
		close(s.ch)
	})
}

func (s *StopSignal) Raised() bool {
	return s.raised.Load()
}

// Done is closed once the signal is raised.
func (s *StopSignal) Done() <-chan struct{} {
	return s.ch
}

func (s *StopSignal) Reason() string {
	if r, ok := s.reason.Load().(string); ok {
		return r
	}
	return ReasonRunDeadline
}

// RunContext groups the state shared by the workers of one run. It is created
// when the run starts and discarded with it.
type RunContext struct {
	Pending    *Queue
	InProgress *Queue
	Done       *Queue
	Stop       *StopSignal

	Total    int
	Started  time.Time
	Deadline time.Time
}

func NewRunContext(total, maxConcurrency int, started, deadline time.Time) *RunContext {
	return &RunContext{
		Pending:    NewQueue("pending", total),
		InProgress: NewBoundedQueue("in_progress", maxConcurrency),
		Done:       NewQueue("done", total),
		Stop:       NewStopSignal(),
		Total:      total,
		Started:    started,
		Deadline:   deadline,
	}
}

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	Total      int       `json:"total"`
	Pending    int       `json:"pending"`
	InProgress int       `json:"inProgress"`
	Done       int       `json:"done"`
	Stopped    bool      `json:"stopped"`
	Started    time.Time `json:"started"`
	Deadline   time.Time `json:"deadline"`
}

func (rc *RunContext) Snapshot() Snapshot {
	return Snapshot{
		Total:      rc.Total,
		Pending:    rc.Pending.Len(),
		InProgress: rc.InProgress.Len(),
		Done:       rc.Done.Len(),
		Stopped:    rc.Stop.Raised(),
		Started:    rc.Started,
		Deadline:   rc.Deadline,
	}
}
