package types

import (
	"strings"

	"github.com/kubev2v/workflow-dispatcher/internal/catalog"
	"github.com/kubev2v/workflow-dispatcher/internal/dispatch"
)

type ReportRenderer interface {
	Render(data *ReportData) ([]byte, error)
	SupportedFormat() ReportFormat
}

type SummaryProcessor interface {
	ProcessSummary(summary *dispatch.Summary, specs []catalog.Spec) (*ReportData, error)
}

type ReportFormat string

const (
	ReportFormatMarkdown ReportFormat = "markdown"
	ReportFormatCSV      ReportFormat = "csv"
	ReportFormatXLSX     ReportFormat = "xlsx"
)

// Extension returns the file extension used when the report is archived.
func (f ReportFormat) Extension() string {
	switch f {
	case ReportFormatMarkdown:
		return "md"
	default:
		return string(f)
	}
}

// ContentType returns the media type of the rendered report.
func (f ReportFormat) ContentType() string {
	switch f {
	case ReportFormatCSV:
		return "text/csv"
	case ReportFormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/markdown"
	}
}

// Appendable reports whether the report can be appended to an existing
// destination, as a step summary expects.
func (f ReportFormat) Appendable() bool {
	return f != ReportFormatXLSX
}

type ReportOptions struct {
	Format   ReportFormat
	Site     string
	RunID    string
	// HeadRef is the ref of the pull request that started the run, if any.
	HeadRef  string
	Workflow string
	DryRun   bool
}

type ReportData struct {
	Options    ReportOptions
	Timestamps ReportTimestamps
	Totals     Totals
	Rows       []StatusRow
	Plan       []PlanItem
}

type Totals struct {
	Total  int
	Counts []CategoryCount
	Line   string
}

type CategoryCount struct {
	Category string
	Count    int
}

type StatusRow struct {
	Key        string
	Name       string
	Version    string
	Repository string
	Ref        string
	Category   string
	State      string
	Outcome    string
	Reason     string
	RunID      string
	RunURL     string
	Duration   string
	Icon       string
}

// PlanItem is one entry of the execution plan dump. It is serialized with
// sigs.k8s.io/yaml, hence the json tags.
type PlanItem struct {
	dispatch.PlanEntry
	Technologies []string `json:"technologies,omitempty"`
	Categories   []string `json:"categories,omitempty"`
}

// ParamString renders the parameters as "name=value" pairs in order.
func (i PlanItem) ParamString() string {
	parts := make([]string, 0, len(i.Parameters))
	for _, p := range i.Parameters {
		parts = append(parts, p.Name+"="+p.Value)
	}
	return strings.Join(parts, "; ")
}

type ReportTimestamps struct {
	Generated     string
	GeneratedTime string
}

type ReportTemplateData struct {
	Title         string
	Site          string
	RunID         string
	HeadRef       string
	Workflow      string
	DryRun        bool
	GeneratedDate string
	GeneratedTime string
	Totals        Totals
	Rows          []StatusRow
	PlanYAML      string
}
