package xlsx

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kubev2v/workflow-dispatcher/internal/service/report/types"
)

const (
	SheetStatus = "Status"
	SheetPlan   = "Plan"
)

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) SupportedFormat() types.ReportFormat {
	return types.ReportFormatXLSX
}

func (r *Renderer) Render(data *types.ReportData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	statusIndex, err := f.NewSheet(SheetStatus)
	if err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetPlan); err != nil {
		return nil, err
	}
	f.SetActiveSheet(statusIndex)
	_ = f.DeleteSheet("Sheet1")

	if err := writeSheet(f, SheetStatus, statusRows(data)); err != nil {
		return nil, err
	}
	if err := writeSheet(f, SheetPlan, planRows(data.Plan)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func statusRows(data *types.ReportData) [][]any {
	rows := [][]any{
		{"Site", data.Options.Site, "Workflow", data.Options.Workflow, "Run ID", data.Options.RunID, "Head Ref", data.Options.HeadRef},
		{"Generated", data.Timestamps.Generated + " " + data.Timestamps.GeneratedTime, "Jobs", data.Totals.Total, "Summary", data.Totals.Line},
		{},
		{"Key", "Name", "Version", "Repository", "Ref", "Category", "State", "Outcome", "Run ID", "Run URL", "Duration", "Details"},
	}
	for _, row := range data.Rows {
		rows = append(rows, []any{
			row.Key, row.Name, row.Version, row.Repository, row.Ref, row.Category,
			row.State, row.Outcome, row.RunID, row.RunURL, row.Duration, row.Reason,
		})
	}
	return rows
}

func planRows(plan []types.PlanItem) [][]any {
	rows := [][]any{{"Key", "Name", "Repository", "Ref", "Version", "Technologies", "Categories", "Parameters", "State"}}
	for _, item := range plan {
		rows = append(rows, []any{
			item.Key, item.Name, item.Owner + "/" + item.Repo, item.Ref, item.Version,
			strings.Join(item.Technologies, ", "), strings.Join(item.Categories, ", "),
			item.ParamString(), string(item.State),
		})
	}
	return rows
}

func writeSheet(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
