package dispatch

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/kubev2v/workflow-dispatcher/internal/client"
)

const (
	DefaultJobTimeout         = time.Hour
	DefaultRunTimeout         = 2 * time.Hour
	DefaultSafetyBuffer       = 2 * time.Minute
	DefaultPollInterval       = 30 * time.Second
	DefaultQueueWait          = time.Second
	DefaultSubmitInterval     = time.Second
	DefaultRegistrationWindow = 5 * time.Second
	DefaultRegistrationSettle = 2 * time.Second
	DefaultCheckInterval      = time.Second
	DefaultGracePeriod        = 5 * time.Second
)

// RunService is the remote platform the jobs are dispatched to.
type RunService interface {
	Trigger(ctx context.Context, owner, repo, workflow, ref string, inputs client.Inputs) error
	ListRuns(ctx context.Context, owner, repo, workflow string, opts client.ListRunsOptions) ([]*client.Run, error)
	GetRun(ctx context.Context, owner, repo string, runID int64) (*client.Run, error)
}

// Options tune a run. Zero durations take the defaults above.
type Options struct {
	// Workflow is the downstream workflow file name or id.
	Workflow       string
	MaxConcurrency int

	JobTimeout time.Duration
	RunTimeout time.Duration
	// SafetyBuffer is taken off RunTimeout so the report can still be written
	// before an outer hard limit. When it is not smaller than RunTimeout, half
	// of RunTimeout is used.
	SafetyBuffer time.Duration

	PollInterval time.Duration
	// PollJitter is the standard deviation applied to PollInterval.
	PollJitter time.Duration

	QueueWait      time.Duration
	SubmitInterval time.Duration

	RegistrationWindow time.Duration
	RegistrationSettle time.Duration
	// RegistrationSkew widens the lookup window backwards to absorb clock skew
	// with the remote platform.
	RegistrationSkew time.Duration

	CheckInterval time.Duration
	GracePeriod   time.Duration

	// DryRun reduces the planned jobs without dispatching anything.
	DryRun bool

	// Central, when set, routes every job to one repository instead of the
	// repository of its catalog entry.
	Central *CentralTarget

	Clock clock.PassiveClock
}

// Inputs of a trigger sent to a central target.
const (
	InputItemName   = "itemName"
	InputCatalogRef = "catalogRef"
)

// CentralTarget is a repository whose workflow deploys catalog items by name.
// It reads everything but the name from the catalog at CatalogRef.
type CentralTarget struct {
	Owner      string
	Repo       string
	// Ref is the ref the central workflow runs at.
	Ref        string
	CatalogRef string
}

// target is where the remote calls for one job go.
type target struct {
	owner  string
	repo   string
	ref    string
	inputs client.Inputs
}

func (t target) repository() string {
	return t.owner + "/" + t.repo
}

func (o Options) targetOf(job *Job) target {
	if o.Central == nil {
		return target{owner: job.Owner, repo: job.Repo, ref: job.Ref, inputs: job.Parameters()}
	}
	return target{
		owner: o.Central.Owner,
		repo:  o.Central.Repo,
		ref:   o.Central.Ref,
		inputs: client.Inputs{
			{Name: InputItemName, Value: job.Name},
			{Name: InputCatalogRef, Value: o.Central.CatalogRef},
		},
	}
}

func (o Options) withDefaults() Options {
	setDefault(&o.JobTimeout, DefaultJobTimeout)
	setDefault(&o.RunTimeout, DefaultRunTimeout)
	setDefault(&o.SafetyBuffer, DefaultSafetyBuffer)
	setDefault(&o.PollInterval, DefaultPollInterval)
	setDefault(&o.QueueWait, DefaultQueueWait)
	setDefault(&o.SubmitInterval, DefaultSubmitInterval)
	setDefault(&o.RegistrationWindow, DefaultRegistrationWindow)
	setDefault(&o.RegistrationSettle, DefaultRegistrationSettle)
	setDefault(&o.CheckInterval, DefaultCheckInterval)
	setDefault(&o.GracePeriod, DefaultGracePeriod)
	if o.PollJitter <= 0 {
		o.PollJitter = o.PollInterval / 20
	}
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = 1
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	return o
}

// deadline returns the whole-run deadline for a run started at start.
func (o Options) deadline(start time.Time) time.Time {
	buffer := o.SafetyBuffer
	if buffer >= o.RunTimeout {
		buffer = o.RunTimeout / 2
	}
	return start.Add(o.RunTimeout - buffer)
}

func setDefault(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}
