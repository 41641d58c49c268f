package service

import (
	"fmt"

	"github.com/kubev2v/workflow-dispatcher/internal/catalog"
	"github.com/kubev2v/workflow-dispatcher/internal/dispatch"
	"github.com/kubev2v/workflow-dispatcher/internal/service/report"
	"github.com/kubev2v/workflow-dispatcher/internal/service/report/csv"
	"github.com/kubev2v/workflow-dispatcher/internal/service/report/markdown"
	"github.com/kubev2v/workflow-dispatcher/internal/service/report/types"
	"github.com/kubev2v/workflow-dispatcher/internal/service/report/xlsx"
)

type ReportRenderer = types.ReportRenderer
type SummaryProcessor = types.SummaryProcessor
type ReportFormat = types.ReportFormat
type ReportOptions = types.ReportOptions
type ReportData = types.ReportData

const (
	ReportFormatMarkdown = types.ReportFormatMarkdown
	ReportFormatCSV      = types.ReportFormatCSV
	ReportFormatXLSX     = types.ReportFormatXLSX
)

type ReportService struct {
	processor types.SummaryProcessor
	renderers map[types.ReportFormat]types.ReportRenderer
}

// NewReportService registers every renderer. templatePath overrides the
// built-in markdown template when set.
func NewReportService(templatePath string) *ReportService {
	service := &ReportService{
		processor: report.NewStandardSummaryProcessor(),
		renderers: make(map[types.ReportFormat]types.ReportRenderer),
	}

	for _, r := range []types.ReportRenderer{
		markdown.NewRenderer(templatePath),
		csv.NewRenderer(),
		xlsx.NewRenderer(),
	} {
		service.renderers[r.SupportedFormat()] = r
	}

	return service
}

func (r *ReportService) GenerateReport(summary *dispatch.Summary, specs []catalog.Spec, options types.ReportOptions) ([]byte, error) {
	reportData, err := r.processor.ProcessSummary(summary, specs)
	if err != nil {
		return nil, fmt.Errorf("failed to process summary: %w", err)
	}

	reportData.Options = options

	renderer, exists := r.renderers[options.Format]
	if !exists {
		return nil, fmt.Errorf("unsupported report format: %s", options.Format)
	}

	return renderer.Render(reportData)
}
