package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/kubev2v/workflow-dispatcher/internal/service/report/types"
)

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) SupportedFormat() types.ReportFormat {
	return types.ReportFormatCSV
}

func (r *Renderer) Render(data *types.ReportData) ([]byte, error) {
	var csvRows [][]string

	csvRows = append(csvRows, []string{"WORKFLOW DISPATCH REPORT"})
	csvRows = append(csvRows, []string{fmt.Sprintf("Generated: %s at %s",
		data.Timestamps.Generated, data.Timestamps.GeneratedTime)})
	csvRows = append(csvRows, []string{""})

	csvRows = r.addRunInformation(csvRows, data.Options)
	csvRows = r.addTotals(csvRows, data.Totals)
	csvRows = r.addJobStatus(csvRows, data.Rows)
	csvRows = r.addExecutionPlan(csvRows, data.Plan)

	return r.convertRowsToCSV(csvRows)
}

func (r *Renderer) addRunInformation(csvRows [][]string, options types.ReportOptions) [][]string {
	csvRows = append(csvRows, []string{"RUN INFORMATION"})
	csvRows = append(csvRows, []string{""})
	csvRows = append(csvRows, []string{"Property", "Value"})
	csvRows = append(csvRows, []string{"Site", options.Site})
	csvRows = append(csvRows, []string{"Workflow", options.Workflow})
	csvRows = append(csvRows, []string{"Run ID", options.RunID})
	csvRows = append(csvRows, []string{"Head Ref", options.HeadRef})
	csvRows = append(csvRows, []string{"Dry Run", fmt.Sprintf("%t", options.DryRun)})
	csvRows = append(csvRows, []string{""})

	return csvRows
}

func (r *Renderer) addTotals(csvRows [][]string, totals types.Totals) [][]string {
	csvRows = append(csvRows, []string{"SUMMARY"})
	csvRows = append(csvRows, []string{""})
	csvRows = append(csvRows, []string{"Category", "Jobs"})

	for _, c := range totals.Counts {
		csvRows = append(csvRows, []string{c.Category, fmt.Sprintf("%d", c.Count)})
	}
	csvRows = append(csvRows, []string{"total", fmt.Sprintf("%d", totals.Total)})
	csvRows = append(csvRows, []string{""})

	return csvRows
}

func (r *Renderer) addJobStatus(csvRows [][]string, rows []types.StatusRow) [][]string {
	csvRows = append(csvRows, []string{"JOB STATUS"})
	csvRows = append(csvRows, []string{""})
	csvRows = append(csvRows, []string{"Key", "Name", "Version", "Repository", "Ref", "Category", "State", "Outcome", "Run ID", "Run URL", "Duration", "Details"})

	for _, row := range rows {
		csvRows = append(csvRows, []string{
			row.Key,
			row.Name,
			row.Version,
			row.Repository,
			row.Ref,
			row.Category,
			row.State,
			row.Outcome,
			row.RunID,
			row.RunURL,
			row.Duration,
			row.Reason})
	}
	csvRows = append(csvRows, []string{""})

	return csvRows
}

func (r *Renderer) addExecutionPlan(csvRows [][]string, plan []types.PlanItem) [][]string {
	csvRows = append(csvRows, []string{"EXECUTION PLAN"})
	csvRows = append(csvRows, []string{""})

	if len(plan) == 0 {
		csvRows = append(csvRows, []string{"No jobs selected"})
		return csvRows
	}

	csvRows = append(csvRows, []string{"Key", "Repository", "Ref", "Technologies", "Categories", "Parameters"})
	for _, item := range plan {
		csvRows = append(csvRows, []string{
			item.Key,
			item.Owner + "/" + item.Repo,
			item.Ref,
			strings.Join(item.Technologies, ", "),
			strings.Join(item.Categories, ", "),
			item.ParamString()})
	}

	return csvRows
}

func (r *Renderer) convertRowsToCSV(csvRows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	for _, row := range csvRows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV writer: %w", err)
	}

	return buf.Bytes(), nil
}
