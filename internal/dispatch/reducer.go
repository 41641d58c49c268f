package dispatch

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Category is the display class of a job in the report.
type Category string

const (
	CategoryPlanned            Category = "planned"
	CategoryDispatchDenied     Category = "dispatch-denied"
	CategoryRegistrationFailed Category = "registration-failed"
	CategoryPassing            Category = "passing"
	CategoryFailing            Category = "failing"
	CategoryTimingOut          Category = "timing-out"
	CategoryUnknown            Category = "unknown"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryPassing,
	CategoryFailing,
	CategoryTimingOut,
	CategoryDispatchDenied,
	CategoryRegistrationFailed,
	CategoryPlanned,
	CategoryUnknown,
}

// Classify maps a state to its report category.
func Classify(s State) Category {
	switch s {
	case StatePlanned:
		return CategoryPlanned
	case StateDispatchFailed:
		return CategoryDispatchDenied
	case StateRegisterFailed:
		return CategoryRegistrationFailed
	case StateCompleted:
		return CategoryPassing
	case StateFailed:
		return CategoryFailing
	case StateTimedOut:
		return CategoryTimingOut
	default:
		return CategoryUnknown
	}
}

// Row is one line of the status table.
type Row struct {
	Key        string
	Name       string
	Version    string
	Repository string
	Ref        string
	Category   Category
	State      State
	Outcome    string
	Reason     string
	RunID      int64
	RunURL     string
	Duration   time.Duration
}

// PlanParameter is one input of a planned job.
type PlanParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PlanEntry describes what was, or would have been, dispatched for a job.
type PlanEntry struct {
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	Owner      string          `json:"owner"`
	Repo       string          `json:"repo"`
	Ref        string          `json:"ref"`
	Version    string          `json:"version,omitempty"`
	Parameters []PlanParameter `json:"parameters"`
	State      State           `json:"state"`
	RunID      int64           `json:"runId,omitempty"`
	RunURL     string          `json:"runUrl,omitempty"`
}

// Summary is the reduced result of a run.
type Summary struct {
	Rows        []Row
	Plan        []PlanEntry
	Counts      map[Category]int
	Total       int
	GeneratedAt time.Time
}

// Reduce classifies the retired jobs. It does not mutate them. An empty job
// set yields a single placeholder row.
func Reduce(jobs []*Job, now time.Time) *Summary {
	sorted := slices.Clone(jobs)
	slices.SortFunc(sorted, func(a, b *Job) int {
		return strings.Compare(a.Key, b.Key)
	})

	summary := &Summary{
		Rows:        make([]Row, 0, max(len(sorted), 1)),
		Plan:        make([]PlanEntry, 0, len(sorted)),
		Counts:      make(map[Category]int),
		Total:       len(sorted),
		GeneratedAt: now,
	}

	if len(sorted) == 0 {
		summary.Rows = append(summary.Rows, Row{
			Key:      "-",
			Name:     "no jobs selected",
			Category: CategoryUnknown,
		})
		return summary
	}

	for _, job := range sorted {
		category := Classify(job.State())
		summary.Counts[category]++
		summary.Rows = append(summary.Rows, rowOf(job, category))
		summary.Plan = append(summary.Plan, planOf(job))
	}
	return summary
}

func rowOf(job *Job, category Category) Row {
	row := Row{
		Key:        job.Key,
		Name:       job.Name,
		Version:    job.Version,
		Repository: job.Repository(),
		Ref:        job.Ref,
		Category:   category,
		State:      job.State(),
		Outcome:    job.Outcome,
		Reason:     job.FailureReason,
		RunID:      job.RunID,
		RunURL:     job.RunURL,
	}
	if !job.SubmittedAt.IsZero() && !job.FinishedAt.IsZero() {
		row.Duration = job.FinishedAt.Sub(job.SubmittedAt)
	}
	return row
}

func planOf(job *Job) PlanEntry {
	params := make([]PlanParameter, 0, len(job.parameters))
	for _, p := range job.parameters {
		params = append(params, PlanParameter{Name: p.Name, Value: p.Value})
	}
	return PlanEntry{
		Key:        job.Key,
		Name:       job.Name,
		Owner:      job.Owner,
		Repo:       job.Repo,
		Ref:        job.Ref,
		Version:    job.Version,
		Parameters: params,
		State:      job.State(),
		RunID:      job.RunID,
		RunURL:     job.RunURL,
	}
}

// Count returns the number of jobs in category.
func (s *Summary) Count(category Category) int {
	return s.Counts[category]
}

// CountsString renders the non-zero counts, e.g. "3 passing, 1 failing".
func (s *Summary) CountsString() string {
	parts := make([]string, 0, len(Categories))
	for _, c := range Categories {
		if n := s.Counts[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, c))
		}
	}
	if len(parts) == 0 {
		return "no jobs"
	}
	return strings.Join(parts, ", ")
}
