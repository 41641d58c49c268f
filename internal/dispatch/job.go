package dispatch

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kubev2v/workflow-dispatcher/internal/catalog"
	"github.com/kubev2v/workflow-dispatcher/internal/client"
	"github.com/kubev2v/workflow-dispatcher/pkg/metrics"
)

// State is the lifecycle position of a Job.
type State string

const (
	StatePlanned        State = "PLANNED"
	StateSubmitting     State = "SUBMITTING"
	StateDispatchFailed State = "DISPATCH_FAILED"
	StateRegistered     State = "REGISTERED"
	StateRunning        State = "RUNNING"
	StateCompleted      State = "COMPLETED"
	StateFailed         State = "FAILED"
	StateRegisterFailed State = "REGISTER_FAILED"
	StateTimedOut       State = "TIMED_OUT"
)

func (s State) String() string {
	return string(s)
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

var transitions = map[State][]State{
	StatePlanned:    {StateSubmitting, StateTimedOut},
	StateSubmitting: {StateDispatchFailed, StateRegistered, StateRegisterFailed, StateTimedOut},
	StateRegistered: {StateRunning, StateTimedOut},
	StateRunning:    {StateRunning, StateCompleted, StateFailed, StateTimedOut},
}

// ErrIllegalTransition is returned for a transition missing from the table.
// It signals a programming error and is fatal to the worker that hits it.
var ErrIllegalTransition = errors.New("illegal job state transition")

func canTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Job is the runtime record of one catalog entry. Only the worker that took a
// job from a queue may mutate it.
type Job struct {
	Key     string
	Name    string
	Owner   string
	Repo    string
	Ref     string
	Version string

	SubmittedAt   time.Time
	FinishedAt    time.Time
	RunID         int64
	RunURL        string
	Outcome       string
	FailureReason string
	Polls         int

	state      State
	parameters client.Inputs
	// polling is set while the job holds a slot of the polling stage.
	polling    bool
}

func NewJob(spec catalog.Spec, defaultRef string) *Job {
	params := make(client.Inputs, 0, len(spec.Values))
	for _, v := range spec.Values {
		params = append(params, client.Input{Name: v.Name, Value: v.Value})
	}
	return &Job{
		Key:        spec.Key,
		Name:       spec.Name,
		Owner:      spec.Owner,
		Repo:       spec.Repo,
		Ref:        spec.RefOr(defaultRef),
		Version:    spec.Version,
		state:      StatePlanned,
		parameters: params,
	}
}

func NewJobs(specs []catalog.Spec, defaultRef string) []*Job {
	jobs := make([]*Job, 0, len(specs))
	for _, spec := range specs {
		jobs = append(jobs, NewJob(spec, defaultRef))
	}
	return jobs
}

func (j *Job) State() State {
	return j.state
}

// Parameters returns a copy of the trigger inputs.
func (j *Job) Parameters() client.Inputs {
	return slices.Clone(j.parameters)
}

func (j *Job) Repository() string {
	return j.Owner + "/" + j.Repo
}

func (j *Job) transition(to State, at time.Time) error {
	if !canTransition(j.state, to) {
		return fmt.Errorf("%w: job %s %s -> %s", ErrIllegalTransition, j.Key, j.state, to)
	}
	j.state = to
	if to.Terminal() {
		j.FinishedAt = at
		metrics.IncreaseJobsTotalMetric(string(to))
	}
	return nil
}

func (j *Job) submit(at time.Time) error {
	if err := j.transition(StateSubmitting, at); err != nil {
		return err
	}
	j.SubmittedAt = at
	return nil
}

func (j *Job) register(run *client.Run, at time.Time) error {
	if err := j.transition(StateRegistered, at); err != nil {
		return err
	}
	j.RunID = run.ID
	j.RunURL = run.HTMLURL
	return nil
}

func (j *Job) running(at time.Time) error {
	return j.transition(StateRunning, at)
}

// complete records the conclusion of a finished run.
func (j *Job) complete(conclusion string, at time.Time) error {
	to := StateCompleted
	if conclusion != client.ConclusionSuccess {
		to = StateFailed
	}
	if err := j.transition(to, at); err != nil {
		return err
	}
	j.Outcome = conclusion
	if to == StateFailed {
		if conclusion == "" {
			conclusion = "no conclusion"
		}
		j.FailureReason = fmt.Sprintf("run concluded with %s", conclusion)
	}
	return nil
}

func (j *Job) fail(to State, reason string, at time.Time) error {
	if to != StateDispatchFailed && to != StateRegisterFailed && to != StateTimedOut {
		return fmt.Errorf("%w: job %s cannot fail into %s", ErrIllegalTransition, j.Key, to)
	}
	if err := j.transition(to, at); err != nil {
		return err
	}
	j.FailureReason = reason
	return nil
}
