package dispatch

import (
	"context"
	"fmt"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/kubev2v/workflow-dispatcher/pkg/metrics"
)

// Poller cycles over the jobs of the polling stage until each one reaches a
// terminal state. Several pollers share the in_progress queue.
type Poller struct {
	id      int
	rc      *RunContext
	service RunService
	opts    Options
	log     *zap.SugaredLogger
}

func NewPoller(id int, rc *RunContext, service RunService, opts Options) *Poller {
	return &Poller{
		id:      id,
		rc:      rc,
		service: service,
		opts:    opts.withDefaults(),
		log:     zap.S().Named(fmt.Sprintf("poller-%d", id)),
	}
}

// Run returns nil once the run is stopped and no job is left to time out.
// Any error it returns is fatal.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Debug("poller started")
	defer p.log.Debug("poller stopped")

	ticker := jitterbug.New(p.opts.PollInterval, &jitterbug.Norm{Stdev: p.opts.PollJitter})
	defer ticker.Stop()

	for {
		// Once stopped, the remaining jobs are timed out without waiting for ticks.
		if !p.rc.Stop.Raised() {
			select {
			case <-ctx.Done():
				return nil
			case <-p.rc.Stop.Done():
			case <-ticker.C:
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		job, ok := p.rc.InProgress.Take(ctx, p.opts.QueueWait)
		if !ok {
			if p.rc.Stop.Raised() {
				return nil
			}
			continue
		}

		if err := p.poll(ctx, job); err != nil {
			return err
		}
	}
}

func (p *Poller) poll(ctx context.Context, job *Job) error {
	now := p.opts.Clock.Now()
	if err := job.running(now); err != nil {
		return err
	}

	if p.rc.Stop.Raised() {
		return p.retire(job, func() error {
			return job.fail(StateTimedOut, p.rc.Stop.Reason(), now)
		})
	}

	if !now.Before(job.SubmittedAt.Add(p.opts.JobTimeout)) {
		p.log.Warnw("per-job deadline reached", "job", job.Key, "run_id", job.RunID, "timeout", p.opts.JobTimeout)
		return p.retire(job, func() error {
			return job.fail(StateTimedOut, fmt.Sprintf("per-job deadline reached (%s after submission)", p.opts.JobTimeout), now)
		})
	}

	job.Polls++
	t := p.opts.targetOf(job)
	run, err := p.service.GetRun(ctx, t.owner, t.repo, job.RunID)
	if err != nil {
		p.log.Warnw("status check failed, will retry", "job", job.Key, "run_id", job.RunID, "error", err)
		return p.rc.InProgress.Return(job)
	}

	if !run.Completed() {
		p.log.Debugw("run still in progress", "job", job.Key, "run_id", job.RunID, "status", run.Status)
		return p.rc.InProgress.Return(job)
	}

	p.log.Infow("run completed", "job", job.Key, "run_id", job.RunID, "conclusion", run.Conclusion)
	return p.retire(job, func() error {
		return job.complete(run.Conclusion, p.opts.Clock.Now())
	})
}

// retire applies the terminal transition and moves the job out of the
// polling stage, freeing its slot.
func (p *Poller) retire(job *Job, transition func() error) error {
	if err := transition(); err != nil {
		return err
	}
	p.rc.InProgress.Release()
	job.polling = false
	metrics.DecreaseJobsInProgressMetric()
	return p.rc.Done.Push(job)
}
