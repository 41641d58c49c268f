package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubev2v/workflow-dispatcher/pkg/metrics"
)

// ErrJobsLost is returned when the final sweep finds a job missing from done
// or present there twice.
var ErrJobsLost = errors.New("jobs lost during the run")

// Controller owns one run: it starts the workers, enforces the whole-run
// deadline, winds the run down and reduces the result.
type Controller struct {
	service RunService
	opts    Options
	log     *zap.SugaredLogger
	current atomic.Pointer[RunContext]
}

func NewController(service RunService, opts Options) *Controller {
	return &Controller{
		service: service,
		opts:    opts.withDefaults(),
		log:     zap.S().Named("controller"),
	}
}

// Snapshot reports the progress of the current run. ok is false before Run.
func (c *Controller) Snapshot() (Snapshot, bool) {
	rc := c.current.Load()
	if rc == nil {
		return Snapshot{}, false
	}
	return rc.Snapshot(), true
}

// Run dispatches jobs and blocks until every job is terminal. The summary is
// returned even when err is not nil; err reports a fatal worker failure or a
// broken invariant, never a job outcome.
func (c *Controller) Run(ctx context.Context, jobs []*Job) (*Summary, error) {
	start := c.opts.Clock.Now()
	deadline := c.opts.deadline(start)
	rc := NewRunContext(len(jobs), c.opts.MaxConcurrency, start, deadline)
	c.current.Store(rc)

	for _, job := range jobs {
		if err := rc.Pending.Push(job); err != nil {
			return nil, err
		}
	}

	if c.opts.DryRun || len(jobs) == 0 {
		c.log.Infof("nothing to dispatch (jobs: %d, dry run: %t)", len(jobs), c.opts.DryRun)
		rc.Stop.Raise(ReasonCompleted)
		return Reduce(rc.Pending.Drain(), c.opts.Clock.Now()), nil
	}

	pollers := min(c.opts.MaxConcurrency, len(jobs))
	c.log.Infof("starting run: %d jobs, %d pollers, job timeout %s, run deadline %s",
		len(jobs), pollers, c.opts.JobTimeout, deadline.Format(time.RFC3339))

	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	g, gctx := errgroup.WithContext(workerCtx)
	g.Go(func() error {
		return NewSubmitter(rc, c.service, c.opts).Run(gctx)
	})
	for i := 0; i < pollers; i++ {
		g.Go(func() error {
			return NewPoller(i, rc, c.service, c.opts).Run(gctx)
		})
	}
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- g.Wait()
	}()

	reason := c.watch(ctx, gctx, rc)
	rc.Stop.Raise(reason)
	c.log.Infof("stopping run: %s", reason)

	var workerErr error
	grace := time.NewTimer(c.opts.GracePeriod)
	select {
	case workerErr = <-waitCh:
	case <-grace.C:
		c.log.Warnf("workers still busy after %s, cancelling them", c.opts.GracePeriod)
		cancelWorkers()
		workerErr = <-waitCh
	}
	grace.Stop()
	if workerErr != nil {
		c.log.Errorf("worker failed: %v", workerErr)
	}

	now := c.opts.Clock.Now()
	if err := c.sweep(rc, now); err != nil {
		return nil, errors.Join(workerErr, err)
	}

	done, err := adopt(jobs, rc.Done.Drain(), now)
	if err != nil {
		workerErr = errors.Join(workerErr, err)
	}
	if rc.Pending.Len() != 0 || rc.InProgress.Len() != 0 {
		workerErr = errors.Join(workerErr, fmt.Errorf("%w: %d pending and %d in progress after the sweep",
			ErrJobsLost, rc.Pending.Len(), rc.InProgress.Len()))
	}

	summary := Reduce(done, now)
	c.log.Infof("run finished: %s", summary.CountsString())
	return summary, workerErr
}

// watch blocks until the run must stop and returns the reason.
func (c *Controller) watch(ctx, workers context.Context, rc *RunContext) string {
	ticker := time.NewTicker(c.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonInterrupted
		case <-workers.Done():
			return ReasonWorkerFailed
		case <-ticker.C:
		}

		if rc.Done.Len() == rc.Total {
			return ReasonCompleted
		}
		if !c.opts.Clock.Now().Before(rc.Deadline) {
			c.log.Warnf("run deadline %s reached with %d pending and %d in progress jobs",
				rc.Deadline.Format(time.RFC3339), rc.Pending.Len(), rc.InProgress.Len())
			return ReasonRunDeadline
		}
	}
}

// sweep times out every job still queued once the workers are gone.
func (c *Controller) sweep(rc *RunContext, now time.Time) error {
	for _, job := range rc.Pending.Drain() {
		if err := job.fail(StateTimedOut, rc.Stop.Reason(), now); err != nil {
			return err
		}
		if err := rc.Done.Push(job); err != nil {
			return err
		}
	}
	for _, job := range rc.InProgress.Drain() {
		job.polling = false
		metrics.DecreaseJobsInProgressMetric()
		if err := job.fail(StateTimedOut, rc.Stop.Reason(), now); err != nil {
			return err
		}
		if err := rc.Done.Push(job); err != nil {
			return err
		}
	}
	return nil
}

// adopt checks that every created job was retired exactly once. A job
// missing from done was held by a worker that failed; the workers are gone by
// now, so it is timed out here. Duplicates are reported as ErrJobsLost.
func adopt(created, done []*Job, now time.Time) ([]*Job, error) {
	seen := make(map[*Job]int, len(done))
	for _, job := range done {
		seen[job]++
	}

	var errs []error
	for _, job := range created {
		switch seen[job] {
		case 1:
			continue
		case 0:
			if job.polling {
				job.polling = false
				metrics.DecreaseJobsInProgressMetric()
			}
			if !job.State().Terminal() {
				if err := job.fail(StateTimedOut, ReasonWorkerFailed, now); err != nil {
					errs = append(errs, err)
					continue
				}
			}
			zap.S().Named("controller").Warnf("job %s was dropped by a failed worker, retired as %s", job.Key, job.State())
			done = append(done, job)
		default:
			errs = append(errs, fmt.Errorf("%w: job %s found %d times in done", ErrJobsLost, job.Key, seen[job]))
		}
	}
	if len(errs) > 0 {
		return done, errors.Join(errs...)
	}
	return done, nil
}
