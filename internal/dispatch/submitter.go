package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kubev2v/workflow-dispatcher/internal/client"
	"github.com/kubev2v/workflow-dispatcher/pkg/metrics"
)

// Submitter triggers pending jobs one at a time and resolves the run each
// trigger created. Triggers are serialized so that two registration windows
// of the same workflow never overlap.
type Submitter struct {
	rc      *RunContext
	service RunService
	opts    Options
	log     *zap.SugaredLogger
}

func NewSubmitter(rc *RunContext, service RunService, opts Options) *Submitter {
	return &Submitter{
		rc:      rc,
		service: service,
		opts:    opts.withDefaults(),
		log:     zap.S().Named("submitter"),
	}
}

// Run returns nil once the run is stopped. Any error it returns is fatal.
func (s *Submitter) Run(ctx context.Context) error {
	s.log.Debug("submitter started")
	defer s.log.Debug("submitter stopped")

	for {
		if s.rc.Stop.Raised() || ctx.Err() != nil {
			return nil
		}

		job, ok := s.rc.Pending.Take(ctx, s.opts.QueueWait)
		if !ok {
			continue
		}

		if err := s.submit(ctx, job); err != nil {
			return err
		}

		if !s.idle(ctx, s.opts.SubmitInterval) {
			return nil
		}
	}
}

func (s *Submitter) submit(ctx context.Context, job *Job) error {
	if s.rc.Stop.Raised() {
		return s.timeOut(job)
	}

	submittedAt := s.opts.Clock.Now()
	if err := job.submit(submittedAt); err != nil {
		return err
	}

	t := s.opts.targetOf(job)
	s.log.Infow("triggering job", "job", job.Key, "repository", t.repository(), "ref", t.ref, "workflow", s.opts.Workflow)
	if err := s.service.Trigger(ctx, t.owner, t.repo, s.opts.Workflow, t.ref, t.inputs); err != nil {
		if s.interrupted(ctx) {
			return s.timeOut(job)
		}
		s.log.Warnw("dispatch failed", "job", job.Key, "error", err)
		return s.retire(job, StateDispatchFailed, dispatchFailure(err))
	}

	// Let the run list of the remote platform catch up with the trigger.
	if !s.idle(ctx, s.opts.RegistrationWindow+s.opts.RegistrationSettle) {
		return s.timeOut(job)
	}

	from := submittedAt.Add(-s.opts.RegistrationSkew)
	to := submittedAt.Add(s.opts.RegistrationWindow)
	runs, err := s.service.ListRuns(ctx, t.owner, t.repo, s.opts.Workflow, client.ListRunsOptions{
		CreatedAfter:  from,
		CreatedBefore: to,
		Branch:        branchOf(t.ref),
		Event:         client.EventWorkflowDispatch,
	})
	if err != nil {
		if s.interrupted(ctx) {
			return s.timeOut(job)
		}
		s.log.Warnw("registration lookup failed", "job", job.Key, "error", err)
		return s.retire(job, StateRegisterFailed, fmt.Sprintf("registration lookup failed: %v", err))
	}

	switch len(runs) {
	case 0:
		return s.retire(job, StateRegisterFailed, fmt.Sprintf("no run created between %s and %s",
			from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)))
	case 1:
	default:
		ids := make([]string, 0, len(runs))
		for _, r := range runs {
			ids = append(ids, fmt.Sprint(r.ID))
		}
		return s.retire(job, StateRegisterFailed, fmt.Sprintf("ambiguous registration: %d runs matched (%s)",
			len(runs), strings.Join(ids, ", ")))
	}

	if err := job.register(runs[0], s.opts.Clock.Now()); err != nil {
		return err
	}
	s.log.Infow("job registered", "job", job.Key, "run_id", job.RunID, "url", job.RunURL)

	if s.rc.Stop.Raised() {
		return s.timeOut(job)
	}
	if err := s.rc.InProgress.Put(ctx, s.rc.Stop.Done(), job); err != nil {
		if errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) {
			return s.timeOut(job)
		}
		return err
	}
	job.polling = true
	metrics.IncreaseJobsInProgressMetric()
	return nil
}

// retire moves a job that never reached the polling stage to done.
func (s *Submitter) retire(job *Job, to State, reason string) error {
	if err := job.fail(to, reason, s.opts.Clock.Now()); err != nil {
		return err
	}
	return s.rc.Done.Push(job)
}

func (s *Submitter) timeOut(job *Job) error {
	s.log.Infow("job stopped before polling", "job", job.Key, "reason", s.rc.Stop.Reason())
	return s.retire(job, StateTimedOut, s.rc.Stop.Reason())
}

// interrupted reports whether a failed remote call is explained by the run
// being wound down rather than by the remote platform.
func (s *Submitter) interrupted(ctx context.Context) bool {
	return s.rc.Stop.Raised() || ctx.Err() != nil
}

// idle waits for d. It returns false when the run stops first.
func (s *Submitter) idle(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.rc.Stop.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func dispatchFailure(err error) string {
	if code := client.StatusCode(err); code != 0 {
		return fmt.Sprintf("dispatch denied with HTTP %d: %v", code, err)
	}
	return fmt.Sprintf("dispatch failed: %v", err)
}

// branchOf returns the branch or tag name the remote platform reports as
// head branch for ref.
func branchOf(ref string) string {
	for _, prefix := range []string{"refs/heads/", "refs/tags/"} {
		if strings.HasPrefix(ref, prefix) {
			return strings.TrimPrefix(ref, prefix)
		}
	}
	return ref
}
